package filter

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/canectors/topapps/internal/dataset"
	"github.com/canectors/topapps/internal/errhandling"
	"github.com/canectors/topapps/pkg/connector"
)

func mustTable(t *testing.T, source string, header []string, rows ...[]string) *dataset.Table {
	t.Helper()
	table, err := dataset.New(source, header, rows)
	if err != nil {
		t.Fatalf("dataset.New(%s) error = %v", source, err)
	}
	return table
}

var appsHeader = []string{"App", "Category", "Rating", "Reviews", "Installs"}
var reviewsHeader = []string{"App", "Translated_Review", "Sentiment", "Sentiment_Polarity", "Sentiment_Subjectivity"}

func ids(rs *connector.ResultSet) []string {
	out := make([]string, 0, rs.Len())
	for _, r := range rs.Records {
		out = append(out, r.ID)
	}
	return out
}

func TestTransform_Example(t *testing.T) {
	apps := mustTable(t, "apps.csv", []string{"id", "category", "rating", "reviews"},
		[]string{"1", "GAME", "4.5", "2000"},
		[]string{"2", "GAME", "3.0", "5000"},
	)
	reviews := mustTable(t, "reviews.csv", []string{"app"})

	rs, err := Transform(apps, reviews, connector.Criteria{Category: "GAME", MinRating: 4.0, MinReviews: 1000},
		Options{Columns: connector.ColumnMapping{ID: "id", ReviewID: "app"}})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	want := []connector.TopApp{{Rank: 1, ID: "1", Name: "1", Category: "GAME", Rating: 4.5, Rated: true, Reviews: 2000}}
	if diff := cmp.Diff(want, rs.Records); diff != "" {
		t.Errorf("Records mismatch (-want +got):\n%s", diff)
	}
}

func TestTransform_FiltersAreInclusiveAndConjunctive(t *testing.T) {
	apps := mustTable(t, "apps.csv", appsHeader,
		[]string{"exact", "GAME", "4.0", "1000", "10,000+"},
		[]string{"low-rating", "GAME", "3.9", "5000", "10,000+"},
		[]string{"low-reviews", "GAME", "4.8", "999", "10,000+"},
		[]string{"other-cat", "FAMILY", "4.9", "9000", "10,000+"},
		[]string{"lower-case-cat", "game", "4.9", "9000", "10,000+"},
		[]string{"high", "GAME", "5.0", "1,500", "10,000+"},
	)

	rs, err := Transform(apps, nil, connector.Criteria{Category: "GAME", MinRating: 4.0, MinReviews: 1000}, Options{})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	if diff := cmp.Diff([]string{"high", "exact"}, ids(rs)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	for _, r := range rs.Records {
		if r.Category != "GAME" || r.Rating < 4.0 || r.Reviews < 1000 {
			t.Errorf("record %+v violates criteria", r)
		}
	}
}

func TestTransform_Ordering(t *testing.T) {
	apps := mustTable(t, "apps.csv", appsHeader,
		[]string{"c", "BEAUTY", "4.5", "100", ""},
		[]string{"a", "BEAUTY", "4.5", "100", ""},
		[]string{"b", "BEAUTY", "4.5", "300", ""},
		[]string{"d", "BEAUTY", "4.9", "1", ""},
		[]string{"unrated", "BEAUTY", "NaN", "5000", ""},
		[]string{"e", "BEAUTY", "0.0", "4000", ""},
	)

	rs, err := Transform(apps, nil, connector.Criteria{Category: "BEAUTY"}, Options{})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	if diff := cmp.Diff([]string{"d", "b", "a", "c", "unrated", "e"}, ids(rs)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	for i, r := range rs.Records {
		if r.Rank != i+1 {
			t.Errorf("record %s rank = %d, want %d", r.ID, r.Rank, i+1)
		}
	}
	if rs.Records[4].Rated {
		t.Error("NaN rating should be unrated")
	}
}

func TestTransform_ZeroThresholdsKeepWholeCategory(t *testing.T) {
	apps := mustTable(t, "apps.csv", appsHeader,
		[]string{"a", "DATING", "", "0", ""},
		[]string{"b", "DATING", "2.0", "5", ""},
		[]string{"c", "EVENTS", "4.0", "5", ""},
	)
	reviews := mustTable(t, "reviews.csv", reviewsHeader,
		[]string{"b", "ok", "Neutral", "0", "0"},
		[]string{"zzz", "orphan", "Positive", "1", "1"},
	)

	rs, err := Transform(apps, reviews, connector.Criteria{Category: "DATING"}, Options{})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if diff := cmp.Diff([]string{"b", "a"}, ids(rs)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestTransform_LeftJoinAggregates(t *testing.T) {
	apps := mustTable(t, "apps.csv", appsHeader,
		[]string{"with", "COMICS", "4.2", "10", "1,000+"},
		[]string{"without", "COMICS", "4.1", "10", "500+"},
	)
	reviews := mustTable(t, "reviews.csv", reviewsHeader,
		[]string{"with", "Great", "Positive", "0.5", "0.6"},
		[]string{"with", "Bad", "negative", "-0.5", "0.2"},
		[]string{"with", "nan", "nan", "nan", "nan"},
		[]string{"with", "Meh", "Neutral", "0.0", ""},
	)

	rs, err := Transform(apps, reviews, connector.Criteria{Category: "COMICS"}, Options{})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	polarity, subjectivity := 0.0, 0.4
	want := []connector.TopApp{
		{
			Rank: 1, ID: "with", Name: "with", Category: "COMICS", Rating: 4.2, Rated: true, Reviews: 10,
			ReviewAggregate: connector.ReviewAggregate{
				Rows: 4, Count: 4, AvgPolarity: &polarity, AvgSubjectivity: &subjectivity,
				Positive: 1, Neutral: 1, Negative: 1,
			},
			Metadata: map[string]string{"installs": "1,000+"},
		},
		{
			Rank: 2, ID: "without", Name: "without", Category: "COMICS", Rating: 4.1, Rated: true, Reviews: 10,
			Metadata: map[string]string{"installs": "500+"},
		},
	}
	if diff := cmp.Diff(want, rs.Records, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("Records mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"installs"}, rs.MetadataColumns); diff != "" {
		t.Errorf("MetadataColumns mismatch (-want +got):\n%s", diff)
	}
}

func TestTransform_ReviewCountColumn(t *testing.T) {
	apps := mustTable(t, "apps.csv", appsHeader, []string{"a", "BOOKS_AND_REFERENCE", "4", "1", ""})
	reviews := mustTable(t, "reviews.csv", []string{"app_id", "count"},
		[]string{"a", "10"},
		[]string{"a", "2,500"},
	)

	rs, err := Transform(apps, reviews, connector.Criteria{Category: "BOOKS_AND_REFERENCE"},
		Options{Columns: connector.ColumnMapping{ReviewID: "app_id", ReviewCount: "count"}})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	got := rs.Records[0].ReviewAggregate
	if got.Rows != 2 || got.Count != 2510 {
		t.Errorf("aggregate = %+v, want Rows 2 Count 2510", got)
	}
	if got.AvgPolarity != nil {
		t.Error("AvgPolarity should be nil without a polarity column")
	}
}

func TestTransform_CriteriaErrors(t *testing.T) {
	apps := mustTable(t, "apps.csv", appsHeader, []string{"a", "GAME", "4", "1", ""})

	tests := []struct {
		name      string
		criteria  connector.Criteria
		wantErr   error
		wantField string
	}{
		{"unknown category", connector.Criteria{Category: "NOT_A_CATEGORY"}, errhandling.ErrInvalidCategory, ""},
		{"lower-case category", connector.Criteria{Category: "game"}, errhandling.ErrInvalidCategory, ""},
		{"empty category", connector.Criteria{}, errhandling.ErrInvalidCategory, ""},
		{"rating above 5", connector.Criteria{Category: "GAME", MinRating: 5.01}, errhandling.ErrInvalidRange, FieldMinRating},
		{"negative rating", connector.Criteria{Category: "GAME", MinRating: -0.1}, errhandling.ErrInvalidRange, FieldMinRating},
		{"NaN rating", connector.Criteria{Category: "GAME", MinRating: math.NaN()}, errhandling.ErrInvalidRange, FieldMinRating},
		{"negative reviews", connector.Criteria{Category: "GAME", MinReviews: -1}, errhandling.ErrInvalidRange, FieldMinReviews},
		{"negative limit", connector.Criteria{Category: "GAME", Limit: -1}, errhandling.ErrInvalidRange, FieldLimit},
		{"bad where", connector.Criteria{Category: "GAME", Where: "rating >>> 1"}, errhandling.ErrInvalidRange, FieldWhere},
		{"bad strategy", connector.Criteria{Category: "GAME", OnInvalidRow: "ignore"}, errhandling.ErrInvalidRange, FieldOnInvalidRow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := Transform(apps, nil, tt.criteria, Options{})
			if rs != nil {
				t.Error("expected no partial result")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Transform() error = %v, want %v", err, tt.wantErr)
			}
			var rngErr *errhandling.InvalidRangeError
			if tt.wantField != "" && (!errors.As(err, &rngErr) || rngErr.Field != tt.wantField) {
				t.Errorf("error %v does not name field %q", err, tt.wantField)
			}
		})
	}
}

func TestTransform_BoundaryCriteriaAccepted(t *testing.T) {
	apps := mustTable(t, "apps.csv", appsHeader, []string{"a", "GAME", "5.0", "0", ""})

	for _, minRating := range []float64{0, 5} {
		rs, err := Transform(apps, nil, connector.Criteria{Category: "GAME", MinRating: minRating}, Options{})
		if err != nil {
			t.Fatalf("Transform(minRating=%v) error = %v", minRating, err)
		}
		if rs.Len() != 1 {
			t.Errorf("Transform(minRating=%v) returned %d records, want 1", minRating, rs.Len())
		}
	}
}

func TestTransform_InvalidRows(t *testing.T) {
	apps := mustTable(t, "apps.csv", appsHeader,
		[]string{"good", "GAME", "4.0", "10", ""},
		[]string{"bad-rating", "GAME", "19", "10", ""},
		[]string{"bad-reviews", "GAME", "4.0", "3.0M", ""},
		[]string{"other", "1.9", "19", "3.0M", ""},
	)

	t.Run("fail", func(t *testing.T) {
		_, err := Transform(apps, nil, connector.Criteria{Category: "GAME"}, Options{})
		var dsErr *errhandling.DataSourceError
		if !errors.As(err, &dsErr) {
			t.Fatalf("Transform() error = %v, want DataSourceError", err)
		}
		if dsErr.Row != 2 || dsErr.Column != "rating" {
			t.Errorf("error at row %d column %q, want row 2 column rating", dsErr.Row, dsErr.Column)
		}
	})

	for _, strategy := range []string{"skip", "log"} {
		t.Run(strategy, func(t *testing.T) {
			rs, err := Transform(apps, nil, connector.Criteria{Category: "GAME", OnInvalidRow: strategy}, Options{})
			if err != nil {
				t.Fatalf("Transform() error = %v", err)
			}
			if diff := cmp.Diff([]string{"good"}, ids(rs)); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTransform_InvalidReviewRow(t *testing.T) {
	apps := mustTable(t, "apps.csv", appsHeader, []string{"a", "GAME", "4.0", "10", ""})
	reviews := mustTable(t, "reviews.csv", reviewsHeader,
		[]string{"a", "x", "Positive", "very", "0.1"},
		[]string{"a", "y", "Positive", "0.3", "0.1"},
	)

	if _, err := Transform(apps, reviews, connector.Criteria{Category: "GAME"}, Options{}); !errors.Is(err, errhandling.ErrDataSource) {
		t.Fatalf("Transform() error = %v, want data source error", err)
	}

	rs, err := Transform(apps, reviews, connector.Criteria{Category: "GAME", OnInvalidRow: "skip"}, Options{})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if got := rs.Records[0].ReviewAggregate.Rows; got != 1 {
		t.Errorf("Rows = %d, want 1", got)
	}
}

func TestTransform_Deduplicate(t *testing.T) {
	apps := mustTable(t, "apps.csv", appsHeader,
		[]string{"dup", "GAME", "4.0", "10", "first"},
		[]string{"dup", "GAME", "4.5", "20", "second"},
		[]string{"solo", "GAME", "3.0", "10", ""},
	)

	rs, err := Transform(apps, nil, connector.Criteria{Category: "GAME"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if rs.Len() != 3 {
		t.Errorf("without dedupe got %d records, want 3", rs.Len())
	}

	rs, err = Transform(apps, nil, connector.Criteria{Category: "GAME", Deduplicate: true}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"dup", "solo"}, ids(rs)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	if rs.Records[0].Metadata["installs"] != "first" {
		t.Errorf("dedupe should keep the first occurrence, got %q", rs.Records[0].Metadata["installs"])
	}
}

func TestTransform_WhereAndLimit(t *testing.T) {
	apps := mustTable(t, "apps.csv", appsHeader,
		[]string{"a", "FINANCE", "4.9", "10", "1,000,000+"},
		[]string{"b", "FINANCE", "4.8", "10", "100+"},
		[]string{"c", "FINANCE", "4.7", "10", "1,000,000+"},
		[]string{"d", "FINANCE", "4.6", "10", "1,000,000+"},
	)
	reviews := mustTable(t, "reviews.csv", reviewsHeader,
		[]string{"a", "bad", "Negative", "-0.9", "0.5"},
		[]string{"c", "good", "Positive", "0.9", "0.5"},
	)

	rs, err := Transform(apps, reviews, connector.Criteria{
		Category: "FINANCE",
		Where:    `installs == "1,000,000+" && (avg_polarity == nil || avg_polarity > 0)`,
		Limit:    1,
	}, Options{})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if diff := cmp.Diff([]string{"c"}, ids(rs)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	if rs.Records[0].Rank != 1 {
		t.Errorf("Rank = %d, want 1", rs.Records[0].Rank)
	}
}

func TestTransform_WhereNonBoolean(t *testing.T) {
	apps := mustTable(t, "apps.csv", appsHeader, []string{"a", "GAME", "4.0", "10", ""})

	_, err := Transform(apps, nil, connector.Criteria{Category: "GAME", Where: "installs"}, Options{})
	if !errors.Is(err, errhandling.ErrInvalidRange) {
		t.Errorf("Transform() error = %v, want invalid range", err)
	}
}

func TestTransform_MissingColumns(t *testing.T) {
	apps := mustTable(t, "apps.csv", []string{"App", "Category", "Rating"}, []string{"a", "GAME", "4"})

	_, err := Transform(apps, nil, connector.Criteria{Category: "GAME"}, Options{})
	var dsErr *errhandling.DataSourceError
	if !errors.As(err, &dsErr) || dsErr.Column != "reviews" {
		t.Errorf("Transform() error = %v, want missing reviews column", err)
	}

	reviews := mustTable(t, "reviews.csv", []string{"package"})
	full := mustTable(t, "apps.csv", appsHeader, []string{"a", "GAME", "4", "1", ""})
	if _, err := Transform(full, reviews, connector.Criteria{Category: "GAME"}, Options{}); !errors.Is(err, errhandling.ErrDataSource) {
		t.Errorf("Transform() error = %v, want data source error", err)
	}
}

func TestTransform_DoesNotMutateInputs(t *testing.T) {
	apps := mustTable(t, "apps.csv", appsHeader,
		[]string{"b", "GAME", "3.0", "10", ""},
		[]string{"a", "GAME", "4.0", "10", ""},
	)
	before := [][]string{{"b", "GAME", "3.0", "10", ""}, {"a", "GAME", "4.0", "10", ""}}

	if _, err := Transform(apps, nil, connector.Criteria{Category: "GAME"}, Options{}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(before, apps.Rows); diff != "" {
		t.Errorf("apps rows mutated (-want +got):\n%s", diff)
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"nan", 0, false},
		{"159", 159, false},
		{"1,234", 1234, false},
		{"2000.0", 2000, false},
		{"2000.5", 0, true},
		{"-3", 0, true},
		{"3.0M", 0, true},
	}
	for _, tt := range tests {
		got, err := parseCount(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseCount(%q) = %d, %v; want %d, wantErr %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		in        string
		want      float64
		wantRated bool
		wantErr   bool
	}{
		{"4.1", 4.1, true, false},
		{" 5 ", 5, true, false},
		{"NaN", 0, false, false},
		{"", 0, false, false},
		{"19", 0, false, true},
		{"Everyone", 0, false, true},
	}
	for _, tt := range tests {
		got, rated, err := parseRating(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want || rated != tt.wantRated {
			t.Errorf("parseRating(%q) = %v, %v, %v", tt.in, got, rated, err)
		}
	}
}
