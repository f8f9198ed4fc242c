package pathutil

import (
	"path/filepath"
	"testing"
)

func TestSourcePath(t *testing.T) {
	wd, err := filepath.Abs(".")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"empty", "", "", true},
		{"blank", "   ", "", true},
		{"null byte", "a\x00b", "", true},
		{"parent", "../apps.csv", filepath.Join(filepath.Dir(wd), "apps.csv"), false},
		{"parent in the middle", "data/../apps.csv", filepath.Join(wd, "apps.csv"), false},
		{"relative", "data/googleplaystore.csv", filepath.Join(wd, "data", "googleplaystore.csv"), false},
		{"absolute", "/srv/data/reviews.csv", filepath.Clean("/srv/data/reviews.csv"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SourcePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SourcePath(%q) err = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SourcePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestJoinUnder(t *testing.T) {
	base := filepath.Join("var", "lib", "topapps")

	tests := []struct {
		name    string
		elems   []string
		want    string
		wantErr bool
	}{
		{"database file", []string{"market_research.db"}, filepath.Join(base, "market_research.db"), false},
		{"nested", []string{"market_research", "top_apps.csv"}, filepath.Join(base, "market_research", "top_apps.csv"), false},
		{"parent", []string{".."}, "", true},
		{"separator", []string{"a/b"}, "", true},
		{"empty", []string{""}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JoinUnder(base, tt.elems...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("JoinUnder() err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("JoinUnder() = %q, want %q", got, tt.want)
			}
		})
	}
}
