package connector_test

import (
	"encoding/json"
	"testing"

	"github.com/canectors/topapps/pkg/connector"
)

func TestPipelineJSONFieldNames(t *testing.T) {
	pipeline := connector.Pipeline{
		ID:      "top-apps",
		Name:    "Top Apps",
		Version: "1.0.0",
		Sources: connector.Sources{
			Apps:    connector.SourceConfig{Path: "apps_data.csv"},
			Reviews: connector.SourceConfig{Path: "review_data.csv", Delimiter: "auto"},
		},
		Criteria: connector.Criteria{
			Category:   "FOOD_AND_DRINK",
			MinRating:  4.0,
			MinReviews: 1000,
		},
		Destination: connector.Destination{
			Type:     "sqlite",
			Database: "market_research",
			Table:    "top_apps",
		},
		Enabled: true,
	}

	data, err := json.Marshal(pipeline)
	if err != nil {
		t.Fatalf("Failed to marshal pipeline to JSON: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Failed to unmarshal pipeline JSON: %v", err)
	}

	criteria, ok := raw["criteria"].(map[string]interface{})
	if !ok {
		t.Fatalf("criteria missing from JSON: %s", data)
	}
	if criteria["minRating"] != 4.0 {
		t.Errorf("minRating = %v, want 4", criteria["minRating"])
	}
	if criteria["minReviews"] != float64(1000) {
		t.Errorf("minReviews = %v, want 1000", criteria["minReviews"])
	}
	if _, ok := criteria["where"]; ok {
		t.Error("empty where should be omitted")
	}
}

func TestDestinationKey(t *testing.T) {
	d := connector.Destination{Type: "sqlite", Database: "market_research", Table: "top_apps"}
	if got := d.Key(); got != "sqlite:market_research.top_apps" {
		t.Errorf("Key() = %q", got)
	}
}

func TestColumnMappingWithDefaults(t *testing.T) {
	m := connector.ColumnMapping{ID: "package", Name: "title"}.WithDefaults()

	if m.ID != "package" {
		t.Errorf("ID = %q, want package", m.ID)
	}
	if m.Name != "title" {
		t.Errorf("Name = %q, want title", m.Name)
	}
	if m.Category != "category" || m.Rating != "rating" || m.Reviews != "reviews" {
		t.Errorf("defaults not applied: %+v", m)
	}
	if m.ReviewCount != "" {
		t.Errorf("ReviewCount should stay optional, got %q", m.ReviewCount)
	}
}

func TestCategories(t *testing.T) {
	cats := connector.Categories()
	if len(cats) != 15 {
		t.Fatalf("len(Categories()) = %d, want 15", len(cats))
	}

	cats[0] = "MUTATED"
	if connector.Categories()[0] != connector.CategoryArtAndDesign {
		t.Error("Categories() must return a copy")
	}

	tests := []struct {
		in   string
		want bool
	}{
		{"GAME", true},
		{"FOOD_AND_DRINK", true},
		{"game", false},
		{"NOT_A_CATEGORY", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := connector.IsValidCategory(tt.in); got != tt.want {
				t.Errorf("IsValidCategory(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		s := connector.Summarize(&connector.ResultSet{})
		if s.Count != 0 || s.Top != nil {
			t.Errorf("Summarize(empty) = %+v", s)
		}
	})

	t.Run("nil", func(t *testing.T) {
		if s := connector.Summarize(nil); s.Count != 0 {
			t.Errorf("Summarize(nil).Count = %d", s.Count)
		}
	})

	t.Run("statistics and top three", func(t *testing.T) {
		rs := &connector.ResultSet{Records: []connector.TopApp{
			{ID: "a", Rating: 4.0, Reviews: 100},
			{ID: "b", Rating: 4.8, Reviews: 300},
			{ID: "c", Rating: 4.2, Reviews: 200},
			{ID: "d", Rating: 4.8, Reviews: 400},
		}}

		s := connector.Summarize(rs)
		if s.Count != 4 {
			t.Errorf("Count = %d, want 4", s.Count)
		}
		if s.TotalReviews != 1000 {
			t.Errorf("TotalReviews = %d, want 1000", s.TotalReviews)
		}
		if s.AvgReviews != 250 {
			t.Errorf("AvgReviews = %v, want 250", s.AvgReviews)
		}
		if want := (4.0 + 4.8 + 4.2 + 4.8) / 4; s.AvgRating != want {
			t.Errorf("AvgRating = %v, want %v", s.AvgRating, want)
		}

		var ids []string
		for _, r := range s.Top {
			ids = append(ids, r.ID)
		}
		if len(ids) != 3 || ids[0] != "b" || ids[1] != "d" || ids[2] != "c" {
			t.Errorf("Top = %v, want [b d c]", ids)
		}
		if rs.Records[0].ID != "a" {
			t.Error("Summarize must not reorder the result set")
		}
	})
}

func TestResultSetColumns(t *testing.T) {
	rs := &connector.ResultSet{MetadataColumns: []string{"installs", "type"}}
	cols := rs.Columns()

	if cols[0] != connector.ColumnRank || cols[1] != connector.ColumnApp {
		t.Errorf("leading columns = %v", cols[:2])
	}
	if got := cols[len(cols)-2:]; got[0] != "installs" || got[1] != "type" {
		t.Errorf("metadata columns = %v", got)
	}
	if !connector.IsResultColumn("review_count") || connector.IsResultColumn("installs") {
		t.Error("IsResultColumn mismatch")
	}
}
