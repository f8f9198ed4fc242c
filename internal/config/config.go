// Package config loads pipeline configuration files (JSON/YAML): parsing
// with line information, validation against the embedded JSON schema,
// conversion to connector.Pipeline and command-line overrides.
package config

import (
	"path/filepath"

	"github.com/canectors/topapps/internal/registry"
	"github.com/canectors/topapps/pkg/connector"
)

// Defaults of a pipeline run without a configuration file.
const (
	DefaultPipelineID  = "top-apps"
	DefaultAppsPath    = "apps_data.csv"
	DefaultReviewsPath = "review_data.csv"
	DefaultCategory    = string(connector.CategoryFoodAndDrink)
	DefaultMinRating   = 4.0
	DefaultMinReviews  = 1000
	DefaultDatabase    = "market_research"
	DefaultTable       = "top_apps"
)

// Default returns the pipeline used when no configuration file is given.
func Default() *connector.Pipeline {
	return &connector.Pipeline{
		ID:      DefaultPipelineID,
		Name:    "Top apps",
		Enabled: true,
		Sources: connector.Sources{
			Apps:    connector.SourceConfig{Path: DefaultAppsPath},
			Reviews: connector.SourceConfig{Path: DefaultReviewsPath},
		},
		Criteria: connector.Criteria{
			Category:   DefaultCategory,
			MinRating:  DefaultMinRating,
			MinReviews: DefaultMinReviews,
		},
		Destination: connector.Destination{
			Type:     registry.SinkSQLite,
			Database: DefaultDatabase,
			Table:    DefaultTable,
			DataDir:  registry.DefaultDataDir,
		},
	}
}

// Loader loads pipeline configurations from files.
type Loader struct {
	// basePath resolves relative configuration paths; empty means the
	// working directory
	basePath string
}

// NewLoader creates a loader resolving relative paths against basePath.
func NewLoader(basePath string) *Loader {
	return &Loader{basePath: basePath}
}

// Load parses, validates and converts the configuration at path. Relative
// source paths and data directories in the file are resolved against the
// file's directory. The pipeline is nil unless the result is valid.
func (l *Loader) Load(path string) (*connector.Pipeline, *Result) {
	if l.basePath != "" && !filepath.IsAbs(path) {
		path = filepath.Join(l.basePath, path)
	}

	result := ParseConfig(path)
	if !result.IsValid() {
		return nil, result
	}

	p, err := ConvertToPipeline(result.Data)
	if err != nil {
		result.ValidationErrors = append(result.ValidationErrors, ValidationError{
			Path:    "/",
			Type:    "convert",
			Message: err.Error(),
		})
		return nil, result
	}
	ResolvePaths(p, filepath.Dir(path))

	if errs := ValidatePipeline(p); len(errs) > 0 {
		result.ValidationErrors = append(result.ValidationErrors, errs...)
		return nil, result
	}
	return p, result
}

// ResolvePaths makes relative file paths of p relative to dir.
func ResolvePaths(p *connector.Pipeline, dir string) {
	resolve := func(path string) string {
		if path == "" || filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(dir, path)
	}
	p.Sources.Apps.Path = resolve(p.Sources.Apps.Path)
	p.Sources.Reviews.Path = resolve(p.Sources.Reviews.Path)
	p.Destination.DataDir = resolve(p.Destination.DataDir)
}

// Overrides are command-line replacements for pipeline fields. Nil fields
// keep the configured value.
type Overrides struct {
	Category    *string
	MinRating   *float64
	MinReviews  *int64
	Where       *string
	Limit       *int
	AppsPath    *string
	ReviewsPath *string
	Database    *string
	Table       *string
	DataDir     *string
}

// Apply returns a copy of p with the overrides applied.
func (o Overrides) Apply(p *connector.Pipeline) *connector.Pipeline {
	out := *p
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&out.Criteria.Category, o.Category)
	set(&out.Criteria.Where, o.Where)
	set(&out.Sources.Apps.Path, o.AppsPath)
	set(&out.Sources.Reviews.Path, o.ReviewsPath)
	set(&out.Destination.Database, o.Database)
	set(&out.Destination.Table, o.Table)
	set(&out.Destination.DataDir, o.DataDir)
	if o.MinRating != nil {
		out.Criteria.MinRating = *o.MinRating
	}
	if o.MinReviews != nil {
		out.Criteria.MinReviews = *o.MinReviews
	}
	if o.Limit != nil {
		out.Criteria.Limit = *o.Limit
	}
	return &out
}
