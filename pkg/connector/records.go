package connector

import "sort"

// Category is an application classification label.
type Category string

// Supported categories.
const (
	CategoryArtAndDesign      Category = "ART_AND_DESIGN"
	CategoryAutoAndVehicles   Category = "AUTO_AND_VEHICLES"
	CategoryBeauty            Category = "BEAUTY"
	CategoryBooksAndReference Category = "BOOKS_AND_REFERENCE"
	CategoryBusiness          Category = "BUSINESS"
	CategoryComics            Category = "COMICS"
	CategoryCommunication     Category = "COMMUNICATION"
	CategoryDating            Category = "DATING"
	CategoryEducation         Category = "EDUCATION"
	CategoryEntertainment     Category = "ENTERTAINMENT"
	CategoryEvents            Category = "EVENTS"
	CategoryFamily            Category = "FAMILY"
	CategoryFinance           Category = "FINANCE"
	CategoryFoodAndDrink      Category = "FOOD_AND_DRINK"
	CategoryGame              Category = "GAME"
)

var categories = []Category{
	CategoryArtAndDesign,
	CategoryAutoAndVehicles,
	CategoryBeauty,
	CategoryBooksAndReference,
	CategoryBusiness,
	CategoryComics,
	CategoryCommunication,
	CategoryDating,
	CategoryEducation,
	CategoryEntertainment,
	CategoryEvents,
	CategoryFamily,
	CategoryFinance,
	CategoryFoodAndDrink,
	CategoryGame,
}

// Categories returns the supported categories in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// IsValidCategory reports whether s is one of the supported categories.
// Matching is exact.
func IsValidCategory(s string) bool {
	for _, c := range categories {
		if string(c) == s {
			return true
		}
	}
	return false
}

// ReviewAggregate holds per-application review statistics.
type ReviewAggregate struct {
	// Rows is the number of review rows matching the application
	Rows int64 `json:"reviewRows"`

	// Count is the summed review-count column, or Rows when there is none
	Count int64 `json:"reviewCount"`

	// AvgPolarity is the mean sentiment polarity, nil when unknown
	AvgPolarity *float64 `json:"avgSentimentPolarity,omitempty"`

	// AvgSubjectivity is the mean sentiment subjectivity, nil when unknown
	AvgSubjectivity *float64 `json:"avgSentimentSubjectivity,omitempty"`

	Positive int64 `json:"positiveReviews"`
	Neutral  int64 `json:"neutralReviews"`
	Negative int64 `json:"negativeReviews"`
}

// TopApp is one record of a result set: an application joined with its
// review aggregate.
type TopApp struct {
	Rank     int     `json:"rank"`
	ID       string  `json:"app"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Rating   float64 `json:"rating"`

	// Rated is false when the source rating was empty or NaN
	Rated   bool  `json:"rated"`
	Reviews int64 `json:"reviews"`

	ReviewAggregate

	// Metadata holds every other apps column by normalized name
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Persisted column names of a result set, in storage order.
const (
	ColumnRank            = "rank"
	ColumnApp             = "app"
	ColumnName            = "name"
	ColumnCategory        = "category"
	ColumnRating          = "rating"
	ColumnReviews         = "reviews"
	ColumnReviewRows      = "review_rows"
	ColumnReviewCount     = "review_count"
	ColumnAvgPolarity     = "avg_sentiment_polarity"
	ColumnAvgSubjectivity = "avg_sentiment_subjectivity"
	ColumnPositive        = "positive_reviews"
	ColumnNeutral         = "neutral_reviews"
	ColumnNegative        = "negative_reviews"
)

// ResultColumns lists the fixed result columns in storage order.
var ResultColumns = []string{
	ColumnRank,
	ColumnApp,
	ColumnName,
	ColumnCategory,
	ColumnRating,
	ColumnReviews,
	ColumnReviewRows,
	ColumnReviewCount,
	ColumnAvgPolarity,
	ColumnAvgSubjectivity,
	ColumnPositive,
	ColumnNeutral,
	ColumnNegative,
}

// IsResultColumn reports whether name is one of the fixed result columns.
func IsResultColumn(name string) bool {
	for _, c := range ResultColumns {
		if c == name {
			return true
		}
	}
	return false
}

// ResultSet is an ordered sequence of TopApp records.
type ResultSet struct {
	Records []TopApp `json:"records"`

	// MetadataColumns lists metadata keys in source header order
	MetadataColumns []string `json:"metadataColumns,omitempty"`
}

// Len returns the number of records, zero for a nil set.
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Records)
}

// Columns returns the full persisted column list.
func (rs *ResultSet) Columns() []string {
	cols := make([]string, 0, len(ResultColumns)+len(rs.MetadataColumns))
	cols = append(cols, ResultColumns...)
	cols = append(cols, rs.MetadataColumns...)
	return cols
}

// Summary holds aggregate statistics over a result set.
type Summary struct {
	Count        int      `json:"count"`
	AvgRating    float64  `json:"avgRating"`
	AvgReviews   float64  `json:"avgReviews"`
	TotalReviews int64    `json:"totalReviews"`
	Top          []TopApp `json:"top,omitempty"`
}

// topN is the number of records listed in Summary.Top.
const topN = 3

// Summarize computes a Summary over rs. Top lists the three highest
// rated records, keeping result order among equal ratings.
func Summarize(rs *ResultSet) *Summary {
	s := &Summary{Count: rs.Len()}
	if s.Count == 0 {
		return s
	}

	var ratingSum float64
	for _, r := range rs.Records {
		ratingSum += r.Rating
		s.TotalReviews += r.Reviews
	}
	s.AvgRating = ratingSum / float64(s.Count)
	s.AvgReviews = float64(s.TotalReviews) / float64(s.Count)

	top := make([]TopApp, len(rs.Records))
	copy(top, rs.Records)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Rating > top[j].Rating })
	if len(top) > topN {
		top = top[:topN]
	}
	s.Top = top
	return s
}
