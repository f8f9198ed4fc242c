package output

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/canectors/topapps/internal/database"
	"github.com/canectors/topapps/pkg/connector"
)

// tableColumns returns the storage schema of rs.
func tableColumns(rs *connector.ResultSet) []database.Column {
	cols := make([]database.Column, 0, len(connector.ResultColumns)+len(rs.MetadataColumns))
	for _, name := range connector.ResultColumns {
		cols = append(cols, database.Column{Name: name, Type: columnType(name)})
	}
	for _, name := range rs.MetadataColumns {
		cols = append(cols, database.Column{Name: name, Type: database.TypeText})
	}
	return cols
}

func columnType(name string) database.ColumnType {
	switch name {
	case connector.ColumnRank, connector.ColumnReviews, connector.ColumnReviewRows,
		connector.ColumnReviewCount, connector.ColumnPositive, connector.ColumnNeutral,
		connector.ColumnNegative:
		return database.TypeInteger
	case connector.ColumnRating, connector.ColumnAvgPolarity, connector.ColumnAvgSubjectivity:
		return database.TypeReal
	default:
		return database.TypeText
	}
}

// encodeRecord returns the row values of r in tableColumns order.
// Unrated ratings and unknown averages are nil (NULL).
func encodeRecord(r connector.TopApp, metadata []string) []interface{} {
	row := make([]interface{}, 0, len(connector.ResultColumns)+len(metadata))
	var rating interface{}
	if r.Rated {
		rating = r.Rating
	}
	row = append(row,
		int64(r.Rank),
		r.ID,
		r.Name,
		r.Category,
		rating,
		r.Reviews,
		r.ReviewAggregate.Rows,
		r.ReviewAggregate.Count,
		floatPtrValue(r.AvgPolarity),
		floatPtrValue(r.AvgSubjectivity),
		r.Positive,
		r.Neutral,
		r.Negative,
	)
	for _, key := range metadata {
		row = append(row, r.Metadata[key])
	}
	return row
}

func encodeRows(rs *connector.ResultSet) [][]interface{} {
	rows := make([][]interface{}, len(rs.Records))
	for i, r := range rs.Records {
		rows[i] = encodeRecord(r, rs.MetadataColumns)
	}
	return rows
}

func floatPtrValue(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// decodeRows rebuilds a result set from stored columns and rows. Columns that
// are not result columns become metadata, in stored order.
func decodeRows(columns []string, rows [][]interface{}) (*connector.ResultSet, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	for _, c := range connector.ResultColumns {
		if _, ok := index[c]; !ok {
			return nil, fmt.Errorf("stored table lacks column %q", c)
		}
	}

	rs := &connector.ResultSet{Records: make([]connector.TopApp, 0, len(rows))}
	var metaIdx []int
	for i, c := range columns {
		if !connector.IsResultColumn(c) {
			metaIdx = append(metaIdx, i)
			rs.MetadataColumns = append(rs.MetadataColumns, c)
		}
	}

	for n, row := range rows {
		d := rowDecoder{row: row, index: index}
		r := connector.TopApp{
			Rank:     int(d.integer(connector.ColumnRank)),
			ID:       d.text(connector.ColumnApp),
			Name:     d.text(connector.ColumnName),
			Category: d.text(connector.ColumnCategory),
			Reviews:  d.integer(connector.ColumnReviews),
		}
		if rating := d.real(connector.ColumnRating); rating != nil {
			r.Rating, r.Rated = *rating, true
		}
		r.ReviewAggregate = connector.ReviewAggregate{
			Rows:            d.integer(connector.ColumnReviewRows),
			Count:           d.integer(connector.ColumnReviewCount),
			AvgPolarity:     d.real(connector.ColumnAvgPolarity),
			AvgSubjectivity: d.real(connector.ColumnAvgSubjectivity),
			Positive:        d.integer(connector.ColumnPositive),
			Neutral:         d.integer(connector.ColumnNeutral),
			Negative:        d.integer(connector.ColumnNegative),
		}
		if d.err != nil {
			return nil, fmt.Errorf("stored row %d: %w", n+1, d.err)
		}
		if len(metaIdx) > 0 {
			r.Metadata = make(map[string]string, len(metaIdx))
			for j, i := range metaIdx {
				r.Metadata[rs.MetadataColumns[j]] = valueString(row[i])
			}
		}
		rs.Records = append(rs.Records, r)
	}
	return rs, nil
}

// rowDecoder converts driver values (or CSV strings) to record fields,
// keeping the first conversion error.
type rowDecoder struct {
	row   []interface{}
	index map[string]int
	err   error
}

func (d *rowDecoder) value(col string) interface{} {
	return d.row[d.index[col]]
}

func (d *rowDecoder) text(col string) string {
	return valueString(d.value(col))
}

func (d *rowDecoder) integer(col string) int64 {
	switch v := d.value(col).(type) {
	case nil:
		return 0
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		s := strings.TrimSpace(valueString(v))
		if s == "" {
			return 0
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil && d.err == nil {
			d.err = fmt.Errorf("column %s: %w", col, err)
		}
		return n
	}
}

func (d *rowDecoder) real(col string) *float64 {
	var f float64
	switch v := d.value(col).(type) {
	case nil:
		return nil
	case float64:
		f = v
	case int64:
		f = float64(v)
	default:
		s := strings.TrimSpace(valueString(v))
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			if d.err == nil {
				d.err = fmt.Errorf("column %s: %w", col, err)
			}
			return nil
		}
		f = parsed
	}
	if math.IsNaN(f) {
		return nil
	}
	return &f
}

func valueString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
