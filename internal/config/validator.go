package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/canectors/topapps/internal/errhandling"
	"github.com/canectors/topapps/internal/modules/filter"
	"github.com/canectors/topapps/internal/modules/output"
	"github.com/canectors/topapps/internal/registry"
	"github.com/canectors/topapps/internal/scheduler"
	"github.com/canectors/topapps/pkg/connector"
)

//go:embed schema/pipeline-schema.json
var embeddedSchema []byte

const schemaURL = "https://canectors.io/schemas/topapps/v1/pipeline-schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaInitErr  error
)

// GetEmbeddedSchema returns the embedded pipeline schema.
func GetEmbeddedSchema() []byte {
	return embeddedSchema
}

func getCompiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(embeddedSchema))
		if err != nil {
			schemaInitErr = fmt.Errorf("failed to parse embedded schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, doc); err != nil {
			schemaInitErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		compiledSchema, schemaInitErr = compiler.Compile(schemaURL)
		if schemaInitErr != nil {
			schemaInitErr = fmt.Errorf("failed to compile schema: %w", schemaInitErr)
		}
	})
	return compiledSchema, schemaInitErr
}

// ValidateConfig validates a parsed configuration against the pipeline schema.
func ValidateConfig(data map[string]interface{}) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if len(data) == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Path:    "/",
			Type:    "required",
			Message: "configuration is empty",
		})
		return result
	}

	schema, err := getCompiledSchema()
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Path:    "/",
			Type:    "schema",
			Message: fmt.Sprintf("failed to load schema: %v", err),
		})
		return result
	}

	if err := schema.Validate(interface{}(data)); err != nil {
		result.Valid = false
		var detailed *jsonschema.ValidationError
		if errors.As(err, &detailed) {
			result.Errors = convertValidationErrors(detailed, message.NewPrinter(language.English))
		} else {
			result.Errors = append(result.Errors, ValidationError{
				Path:    "/",
				Type:    "validation",
				Message: err.Error(),
			})
		}
	}
	return result
}

// convertValidationErrors flattens the leaves of a validation error tree.
func convertValidationErrors(err *jsonschema.ValidationError, p *message.Printer) []ValidationError {
	if len(err.Causes) == 0 {
		return []ValidationError{{
			Path:    formatInstanceLocation(err.InstanceLocation),
			Type:    errorType(err.ErrorKind),
			Message: err.ErrorKind.LocalizedString(p),
		}}
	}
	var out []ValidationError
	for _, cause := range err.Causes {
		out = append(out, convertValidationErrors(cause, p)...)
	}
	return out
}

func formatInstanceLocation(loc []string) string {
	if len(loc) == 0 {
		return "/"
	}
	return "/" + strings.Join(loc, "/")
}

// errorType names the failed keyword; minimum and maximum become "range".
func errorType(kind jsonschema.ErrorKind) string {
	path := kind.KeywordPath()
	if len(path) == 0 {
		return "validation"
	}
	switch keyword := path[len(path)-1]; keyword {
	case "minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum", "minLength", "maxLength":
		return "range"
	default:
		return keyword
	}
}

// ValidatePipeline checks what the schema cannot express: registered
// source and sink types, criteria (including the where expression) and
// the cron schedule.
func ValidatePipeline(p *connector.Pipeline) []ValidationError {
	if p == nil {
		return []ValidationError{{Path: "/", Type: "required", Message: "pipeline is nil"}}
	}
	var errs []ValidationError

	if p.Sources.Apps.Path == "" {
		errs = append(errs, ValidationError{Path: "/sources/apps/path", Type: "required", Message: "apps source path is required"})
	}
	sources := []struct {
		name string
		src  connector.SourceConfig
	}{{"apps", p.Sources.Apps}, {"reviews", p.Sources.Reviews}}
	for _, s := range sources {
		name, src := s.name, s.src
		if src.Format != "" && registry.GetInputConstructor(src.Format) == nil {
			errs = append(errs, ValidationError{
				Path:    "/sources/" + name + "/format",
				Type:    "enum",
				Message: fmt.Sprintf("unknown source format %q (registered: %s)", src.Format, strings.Join(registry.ListInputTypes(), ", ")),
			})
		}
	}

	if _, err := filter.NewTopAppsFilter(p.Criteria, filter.Options{Columns: p.Columns}); err != nil {
		errs = append(errs, ValidationError{Path: criteriaPath(err), Type: "criteria", Message: err.Error()})
	}

	if p.Destination.Type != "" && registry.GetSinkConstructor(p.Destination.Type) == nil {
		errs = append(errs, ValidationError{
			Path:    "/destination/type",
			Type:    "enum",
			Message: fmt.Sprintf("unknown destination type %q (registered: %s)", p.Destination.Type, strings.Join(registry.ListSinkTypes(), ", ")),
		})
	}
	if err := output.ValidateIdentifier("database", p.Destination.Database); err != nil {
		errs = append(errs, ValidationError{Path: "/destination/database", Type: "pattern", Message: err.Error()})
	}
	if err := output.ValidateIdentifier("table", p.Destination.Table); err != nil {
		errs = append(errs, ValidationError{Path: "/destination/table", Type: "pattern", Message: err.Error()})
	}

	if p.Schedule != "" {
		if err := scheduler.ValidateCronExpression(p.Schedule); err != nil {
			errs = append(errs, ValidationError{Path: "/pipeline/schedule", Type: "cron", Message: err.Error()})
		}
	}
	return errs
}

func criteriaPath(err error) string {
	var rangeErr *errhandling.InvalidRangeError
	if errors.As(err, &rangeErr) {
		return "/criteria/" + rangeErr.Field
	}
	return "/criteria/category"
}
