package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseFile parses a JSON or YAML configuration file. The format comes from
// the file extension, or from the content when the extension is unknown.
func ParseFile(path string) *ParseResult {
	content, err := os.ReadFile(path)
	if err != nil {
		return &ParseResult{
			FilePath: path,
			Format:   DetectFormat(path),
			Errors: []ParseError{{
				Path:    path,
				Message: fmt.Sprintf("failed to read file: %v", err),
				Type:    ErrorTypeIO,
			}},
		}
	}

	result := ParseString(string(content), DetectFormat(path))
	result.FilePath = path
	for i := range result.Errors {
		if result.Errors[i].Path == "" {
			result.Errors[i].Path = path
		}
	}
	return result
}

// ParseString parses configuration content. An empty format is detected
// from the content.
func ParseString(content, format string) *ParseResult {
	if format == "" {
		format = DetectContentFormat(content)
	}
	switch format {
	case FormatJSON:
		return parseJSON(content)
	case FormatYAML:
		return parseYAML(content)
	case "":
		return &ParseResult{Errors: []ParseError{{
			Message: "unable to detect configuration format: not valid JSON or YAML",
			Type:    ErrorTypeFormat,
		}}}
	default:
		return &ParseResult{Format: format, Errors: []ParseError{{
			Message: fmt.Sprintf("unsupported format: %s", format),
			Type:    ErrorTypeFormat,
		}}}
	}
}

// DetectFormat detects the configuration format from the file extension.
// Returns an empty string for unknown extensions.
func DetectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return ""
	}
}

// DetectContentFormat guesses the format of content. JSON is tried first
// because every JSON document is also YAML.
func DetectContentFormat(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return FormatJSON
	}
	var data interface{}
	if err := yaml.Unmarshal([]byte(trimmed), &data); err == nil && data != nil {
		return FormatYAML
	}
	return ""
}

func parseJSON(content string) *ParseResult {
	result := &ParseResult{Format: FormatJSON}
	if strings.TrimSpace(content) == "" {
		result.Errors = append(result.Errors, ParseError{
			Message: "empty content: expected JSON object",
			Type:    ErrorTypeSyntax,
		})
		return result
	}

	dec := json.NewDecoder(strings.NewReader(content))
	dec.UseNumber()
	var data interface{}
	if err := dec.Decode(&data); err != nil {
		result.Errors = append(result.Errors, jsonParseError(err, content))
		return result
	}
	if dec.More() {
		result.Errors = append(result.Errors, ParseError{
			Message: "unexpected content after the JSON object",
			Type:    ErrorTypeSyntax,
		})
		return result
	}

	result.Data, result.Errors = asObject(data, "JSON object")
	return result
}

// jsonParseError extracts the error location from a decoding error.
func jsonParseError(err error, content string) ParseError {
	parseErr := ParseError{Message: err.Error(), Type: ErrorTypeSyntax}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		parseErr.Offset = syntaxErr.Offset
		parseErr.Line, parseErr.Column = offsetToLineColumn(content, syntaxErr.Offset)
		parseErr.Message = fmt.Sprintf("JSON syntax error: %s", syntaxErr.Error())
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		parseErr.Line, parseErr.Column = offsetToLineColumn(content, int64(len(content)))
		parseErr.Message = "JSON syntax error: unexpected end of input"
	}
	return parseErr
}

// offsetToLineColumn converts a byte offset to 1-based line and column.
func offsetToLineColumn(content string, offset int64) (line, column int) {
	line, column = 1, 1
	for i := int64(0); i < offset && i < int64(len(content)); i++ {
		if content[i] == '\n' {
			line++
			column = 1
		} else {
			column++
		}
	}
	return line, column
}

func parseYAML(content string) *ParseResult {
	result := &ParseResult{Format: FormatYAML}
	if strings.TrimSpace(content) == "" {
		result.Errors = append(result.Errors, ParseError{
			Message: "empty content: expected YAML document",
			Type:    ErrorTypeSyntax,
		})
		return result
	}

	var data interface{}
	if err := yaml.Unmarshal([]byte(content), &data); err != nil {
		result.Errors = append(result.Errors, yamlParseError(err))
		return result
	}
	if data == nil {
		result.Errors = append(result.Errors, ParseError{
			Message: "empty document: expected YAML mapping",
			Type:    ErrorTypeFormat,
		})
		return result
	}

	// Schema validation and conversion work on JSON values.
	normalized, err := normalizeYAML(data)
	if err != nil {
		result.Errors = append(result.Errors, ParseError{
			Message: fmt.Sprintf("unsupported YAML value: %v", err),
			Type:    ErrorTypeFormat,
		})
		return result
	}

	result.Data, result.Errors = asObject(normalized, "YAML mapping")
	return result
}

// yamlParseError extracts the line number yaml.v3 embeds in its messages.
func yamlParseError(err error) ParseError {
	parseErr := ParseError{Message: err.Error(), Type: ErrorTypeSyntax}

	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		parseErr.Message = fmt.Sprintf("YAML type error: %s", strings.Join(typeErr.Errors, "; "))
	}

	var line int
	if _, scanErr := fmt.Sscanf(err.Error(), "yaml: line %d:", &line); scanErr == nil {
		parseErr.Line = line
	}
	return parseErr
}

// normalizeYAML turns decoded YAML into the values encoding/json produces.
func normalizeYAML(data interface{}) (interface{}, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func asObject(data interface{}, want string) (map[string]interface{}, []ParseError) {
	obj, ok := data.(map[string]interface{})
	if !ok {
		return nil, []ParseError{{
			Message: fmt.Sprintf("invalid configuration: expected %s, got %T", want, data),
			Type:    ErrorTypeFormat,
		}}
	}
	return obj, nil
}

// ParseConfig parses a configuration file and validates it against the
// pipeline schema. Validation is skipped when parsing fails.
func ParseConfig(path string) *Result {
	return validateParsed(ParseFile(path))
}

// ParseConfigString is ParseConfig for in-memory content.
func ParseConfigString(content, format string) *Result {
	return validateParsed(ParseString(content, format))
}

func validateParsed(parsed *ParseResult) *Result {
	result := &Result{
		Data:        parsed.Data,
		ParseErrors: parsed.Errors,
		FilePath:    parsed.FilePath,
		Format:      parsed.Format,
	}
	if !parsed.IsValid() {
		return result
	}
	result.ValidationErrors = ValidateConfig(parsed.Data).Errors
	return result
}
