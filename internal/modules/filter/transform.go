package filter

import (
	"cmp"
	"log/slog"
	"slices"
	"strings"

	"github.com/expr-lang/expr/vm"

	"github.com/canectors/topapps/internal/dataset"
	"github.com/canectors/topapps/internal/errhandling"
	"github.com/canectors/topapps/internal/logger"
	"github.com/canectors/topapps/pkg/connector"
)

// Options configures how source columns are read.
type Options struct {
	// Columns maps logical fields to source columns. Zero fields take defaults.
	Columns connector.ColumnMapping
}

// TopAppsFilter is the compiled form of a set of criteria.
// It is safe for concurrent use: Process keeps no state between calls.
type TopAppsFilter struct {
	criteria connector.Criteria
	columns  connector.ColumnMapping
	strategy errhandling.OnErrorStrategy
	where    *vm.Program
}

// NewTopAppsFilter validates criteria and compiles the where expression.
// It fails with InvalidCategoryError or InvalidRangeError.
func NewTopAppsFilter(criteria connector.Criteria, opts Options) (*TopAppsFilter, error) {
	if err := ValidateCriteria(criteria); err != nil {
		return nil, err
	}
	program, err := compileWhere(criteria.Where)
	if err != nil {
		return nil, err
	}
	return &TopAppsFilter{
		criteria: criteria,
		columns:  opts.Columns.WithDefaults(),
		strategy: errhandling.ParseOnErrorStrategy(criteria.OnInvalidRow),
		where:    program,
	}, nil
}

// Transform validates criteria, then joins, filters and ranks apps.
// See TopAppsFilter.Process.
func Transform(apps, reviews *dataset.Table, criteria connector.Criteria, opts Options) (*connector.ResultSet, error) {
	f, err := NewTopAppsFilter(criteria, opts)
	if err != nil {
		return nil, err
	}
	return f.Process(apps, reviews)
}

// Process left-joins apps with their review aggregates, keeps records where
// category == criteria.Category, rating >= MinRating and reviews >= MinReviews
// (plus the optional where expression), sorts them by rating descending, then
// reviews descending, then identifier ascending, applies the limit and assigns
// 1-based ranks.
//
// Unrated applications count as rating 0 for filtering and sorting. Numeric
// cells are only decoded for rows in the requested category, so malformed
// rows of other categories never fail a run. reviews may be nil.
func (f *TopAppsFilter) Process(apps, reviews *dataset.Table) (*connector.ResultSet, error) {
	if apps == nil {
		return nil, errhandling.NewDataSourceError("", "apps table is missing", nil)
	}
	cols := f.columns
	if err := apps.Require(cols.ID, cols.Category, cols.Rating, cols.Reviews); err != nil {
		return nil, err
	}
	if reviews != nil {
		if err := reviews.Require(cols.ReviewID); err != nil {
			return nil, err
		}
	}

	idIdx, _ := apps.ColumnIndex(cols.ID)
	catIdx, _ := apps.ColumnIndex(cols.Category)
	ratingIdx, _ := apps.ColumnIndex(cols.Rating)
	reviewsIdx, _ := apps.ColumnIndex(cols.Reviews)
	nameIdx, hasName := optionalColumn(apps, cols.Name)

	metaIdx, metaCols := metadataColumns(apps, idIdx, catIdx, ratingIdx, reviewsIdx, nameIdx)
	policy := &invalidRowPolicy{strategy: f.strategy}

	seen := make(map[string]struct{})
	candidates := make([]connector.TopApp, 0)
	for i, row := range apps.Rows {
		id := strings.TrimSpace(row[idIdx])
		if f.criteria.Deduplicate {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}
		if strings.TrimSpace(row[catIdx]) != f.criteria.Category {
			continue
		}

		rating, rated, err := parseRating(row[ratingIdx])
		if err != nil {
			if err := policy.handle(rowError(apps.Source, i, apps.Columns[ratingIdx], err)); err != nil {
				return nil, err
			}
			continue
		}
		count, err := parseCount(row[reviewsIdx])
		if err != nil {
			if err := policy.handle(rowError(apps.Source, i, apps.Columns[reviewsIdx], err)); err != nil {
				return nil, err
			}
			continue
		}

		if rating < f.criteria.MinRating || count < f.criteria.MinReviews {
			continue
		}

		app := connector.TopApp{
			ID:       id,
			Name:     id,
			Category: f.criteria.Category,
			Rating:   rating,
			Rated:    rated,
			Reviews:  count,
		}
		if hasName {
			if name := strings.TrimSpace(row[nameIdx]); name != "" {
				app.Name = name
			}
		}
		if len(metaIdx) > 0 {
			app.Metadata = make(map[string]string, len(metaIdx))
			for j, idx := range metaIdx {
				app.Metadata[metaCols[j]] = row[idx]
			}
		}
		candidates = append(candidates, app)
	}

	wanted := make(map[string]struct{}, len(candidates))
	for _, app := range candidates {
		wanted[app.ID] = struct{}{}
	}
	aggregates, err := aggregateReviews(reviews, cols, wanted, policy)
	if err != nil {
		return nil, err
	}

	records := make([]connector.TopApp, 0, len(candidates))
	for _, app := range candidates {
		app.ReviewAggregate = aggregates[app.ID]
		pass, err := evalWhere(f.where, f.criteria.Where, &app)
		if err != nil {
			return nil, err
		}
		if pass {
			records = append(records, app)
		}
	}

	SortRecords(records)
	if f.criteria.Limit > 0 && len(records) > f.criteria.Limit {
		records = records[:f.criteria.Limit]
	}
	for i := range records {
		records[i].Rank = i + 1
	}

	if policy.dropped > 0 {
		logger.Info("invalid rows dropped during transform",
			slog.Int("dropped", policy.dropped),
			slog.String("strategy", string(f.strategy)))
	}

	return &connector.ResultSet{Records: records, MetadataColumns: metaCols}, nil
}

// SortRecords orders records by rating descending, then reviews descending,
// then identifier ascending. Unrated records carry rating 0.
func SortRecords(records []connector.TopApp) {
	slices.SortStableFunc(records, func(a, b connector.TopApp) int {
		if c := cmp.Compare(b.Rating, a.Rating); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Reviews, a.Reviews); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// metadataColumns lists every apps column not mapped to a record field and not
// colliding with a result column, in source order.
func metadataColumns(apps *dataset.Table, mapped ...int) ([]int, []string) {
	skip := make(map[int]struct{}, len(mapped))
	for _, i := range mapped {
		if i >= 0 {
			skip[i] = struct{}{}
		}
	}

	var (
		idx  []int
		cols []string
	)
	for i, name := range apps.Columns {
		if _, ok := skip[i]; ok {
			continue
		}
		if connector.IsResultColumn(name) {
			continue
		}
		idx = append(idx, i)
		cols = append(cols, name)
	}
	return idx, cols
}
