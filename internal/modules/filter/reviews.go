package filter

import (
	"strings"

	"github.com/canectors/topapps/internal/dataset"
	"github.com/canectors/topapps/pkg/connector"
)

// Sentiment labels counted from the sentiment column (case-insensitive).
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

type reviewAccumulator struct {
	agg             connector.ReviewAggregate
	countSum        int64
	polaritySum     float64
	polarityN       int
	subjectivitySum float64
	subjectivityN   int
}

func (a *reviewAccumulator) result(useCountColumn bool) connector.ReviewAggregate {
	agg := a.agg
	agg.Count = agg.Rows
	if useCountColumn {
		agg.Count = a.countSum
	}
	if a.polarityN > 0 {
		v := a.polaritySum / float64(a.polarityN)
		agg.AvgPolarity = &v
	}
	if a.subjectivityN > 0 {
		v := a.subjectivitySum / float64(a.subjectivityN)
		agg.AvgSubjectivity = &v
	}
	return agg
}

// aggregateReviews groups review rows by application identifier, keeping only
// identifiers present in wanted. Optional columns absent from the table are
// ignored; malformed numeric cells go through the invalid row policy.
func aggregateReviews(reviews *dataset.Table, cols connector.ColumnMapping, wanted map[string]struct{}, policy *invalidRowPolicy) (map[string]connector.ReviewAggregate, error) {
	out := make(map[string]connector.ReviewAggregate)
	if reviews.Len() == 0 || len(wanted) == 0 {
		return out, nil
	}

	idIdx, _ := reviews.ColumnIndex(cols.ReviewID)
	countIdx, useCount := optionalColumn(reviews, cols.ReviewCount)
	polIdx, hasPol := optionalColumn(reviews, cols.Polarity)
	subIdx, hasSub := optionalColumn(reviews, cols.Subjectivity)
	sentIdx, hasSent := optionalColumn(reviews, cols.Sentiment)

	acc := make(map[string]*reviewAccumulator)
rows:
	for i, row := range reviews.Rows {
		id := strings.TrimSpace(row[idIdx])
		if _, ok := wanted[id]; !ok {
			continue
		}

		var (
			count        int64
			pol, sub     float64
			okPol, okSub bool
			err          error
		)
		if useCount {
			if count, err = parseCount(row[countIdx]); err != nil {
				if err := policy.handle(rowError(reviews.Source, i, reviews.Columns[countIdx], err)); err != nil {
					return nil, err
				}
				continue rows
			}
		}
		if hasPol {
			if pol, okPol, err = parseOptionalFloat(row[polIdx]); err != nil {
				if err := policy.handle(rowError(reviews.Source, i, reviews.Columns[polIdx], err)); err != nil {
					return nil, err
				}
				continue rows
			}
		}
		if hasSub {
			if sub, okSub, err = parseOptionalFloat(row[subIdx]); err != nil {
				if err := policy.handle(rowError(reviews.Source, i, reviews.Columns[subIdx], err)); err != nil {
					return nil, err
				}
				continue rows
			}
		}

		a := acc[id]
		if a == nil {
			a = &reviewAccumulator{}
			acc[id] = a
		}
		a.agg.Rows++
		a.countSum += count
		if okPol {
			a.polaritySum += pol
			a.polarityN++
		}
		if okSub {
			a.subjectivitySum += sub
			a.subjectivityN++
		}
		if hasSent {
			switch strings.ToLower(strings.TrimSpace(row[sentIdx])) {
			case SentimentPositive:
				a.agg.Positive++
			case SentimentNeutral:
				a.agg.Neutral++
			case SentimentNegative:
				a.agg.Negative++
			}
		}
	}

	for id, a := range acc {
		out[id] = a.result(useCount)
	}
	return out, nil
}

func optionalColumn(t *dataset.Table, name string) (int, bool) {
	if name == "" {
		return -1, false
	}
	return t.ColumnIndex(name)
}
