package config

import (
	"encoding/json"
	"fmt"

	"github.com/canectors/topapps/pkg/connector"
)

// fileConfig mirrors the document layout:
//
//	pipeline:      {id, name, description, version, schedule, enabled}
//	sources:       {apps: {path, format, delimiter}, reviews: {...}}
//	columns:       {id, name, category, rating, reviews, ...}
//	criteria:      {category, minRating, minReviews, where, limit, ...}
//	destination:   {type, database, table, dataDir, connectionString, connectionStringRef}
//	errorHandling: {retry: {maxAttempts, delayMs, backoffMultiplier, maxDelayMs}}
//	cache:         {ttlSeconds, size}
type fileConfig struct {
	Pipeline struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Version     string `json:"version"`
		Schedule    string `json:"schedule"`
		Enabled     *bool  `json:"enabled"`
	} `json:"pipeline"`
	Sources       connector.Sources        `json:"sources"`
	Columns       connector.ColumnMapping  `json:"columns"`
	Criteria      connector.Criteria       `json:"criteria"`
	Destination   connector.Destination    `json:"destination"`
	ErrorHandling *connector.ErrorHandling `json:"errorHandling"`
	Cache         *connector.CacheConfig   `json:"cache"`
}

// ConvertToPipeline converts schema-valid configuration data to a Pipeline.
// The name defaults to the id and pipelines are enabled unless stated.
func ConvertToPipeline(data map[string]interface{}) (*connector.Pipeline, error) {
	if data == nil {
		return nil, fmt.Errorf("configuration data is nil")
	}
	if _, ok := data["pipeline"].(map[string]interface{}); !ok {
		return nil, fmt.Errorf("missing or invalid 'pipeline' section")
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}
	var fc fileConfig
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if fc.Pipeline.ID == "" {
		return nil, fmt.Errorf("missing required field 'pipeline.id'")
	}

	p := &connector.Pipeline{
		ID:            fc.Pipeline.ID,
		Name:          fc.Pipeline.Name,
		Description:   fc.Pipeline.Description,
		Version:       fc.Pipeline.Version,
		Schedule:      fc.Pipeline.Schedule,
		Enabled:       true,
		Sources:       fc.Sources,
		Columns:       fc.Columns,
		Criteria:      fc.Criteria,
		Destination:   fc.Destination,
		ErrorHandling: fc.ErrorHandling,
		Cache:         fc.Cache,
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	if fc.Pipeline.Enabled != nil {
		p.Enabled = *fc.Pipeline.Enabled
	}
	return p, nil
}
