// Package persistence provides run state persistence for pipelines.
// It keeps the outcome of the last run of each pipeline so that the CLI
// status command and the HTTP API can report it after restarts.
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/canectors/topapps/internal/logger"
	"github.com/canectors/topapps/internal/pathutil"
	"github.com/canectors/topapps/pkg/connector"
)

// DefaultStatePath is the default directory for state files.
const DefaultStatePath = "./topapps-data/state"

const stateExt = ".json"

// Common errors
var (
	// ErrInvalidPipelineID is returned when pipeline ID is empty.
	ErrInvalidPipelineID = errors.New("pipeline ID is required")

	// ErrNilState is returned when state is nil.
	ErrNilState = errors.New("state is nil")
)

// RunState represents the persisted outcome of a pipeline's runs.
type RunState struct {
	// PipelineID is the unique identifier for the pipeline.
	PipelineID string `json:"pipelineId"`

	// LastRunAt is when the last run started.
	LastRunAt time.Time `json:"lastRunAt"`

	// LastStatus is the status of the last run ("success", "error").
	LastStatus string `json:"lastStatus"`

	// LastSuccessAt is when the last successful run completed.
	LastSuccessAt *time.Time `json:"lastSuccessAt,omitempty"`

	// LastError is the error of the last run, nil when it succeeded.
	LastError *connector.ExecutionError `json:"lastError,omitempty"`

	// RecordsProcessed is the size of the last result set.
	RecordsProcessed int `json:"recordsProcessed"`

	// Loaded reports whether the last run completed its load.
	Loaded bool `json:"loaded"`

	// Destination is where the last run loaded.
	Destination connector.Destination `json:"destination"`

	// Criteria are the criteria of the last run.
	Criteria connector.Criteria `json:"criteria"`

	// Runs and Failures count every recorded run.
	Runs     int `json:"runs"`
	Failures int `json:"failures"`

	// UpdatedAt is when this state was last updated.
	UpdatedAt time.Time `json:"updatedAt"`
}

// StateStore provides thread-safe persistence of run state.
// State files are stored as JSON in the configured base path.
type StateStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewStateStore creates a new StateStore with the specified base path.
// If basePath is empty, DefaultStatePath is used.
func NewStateStore(basePath string) *StateStore {
	if basePath == "" {
		basePath = DefaultStatePath
	}
	return &StateStore{
		basePath: basePath,
	}
}

// filePath returns the full path for a pipeline's state file.
// Pipeline IDs that would escape the base path are rejected.
func (s *StateStore) filePath(pipelineID string) (string, error) {
	if strings.TrimSpace(pipelineID) == "" {
		return "", ErrInvalidPipelineID
	}
	p, err := pathutil.JoinUnder(s.basePath, pipelineID+stateExt)
	if err != nil {
		return "", fmt.Errorf("invalid pipeline ID %q: %w", pipelineID, err)
	}
	return p, nil
}

// Save persists the state for a pipeline.
// Uses atomic write (temp file + rename) to prevent corruption.
// Creates the base directory if it doesn't exist.
func (s *StateStore) Save(pipelineID string, state *RunState) error {
	if state == nil {
		return ErrNilState
	}
	filePath, err := s.filePath(pipelineID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(pipelineID, filePath, state)
}

func (s *StateStore) save(pipelineID, filePath string, state *RunState) error {
	if err := os.MkdirAll(s.basePath, 0o700); err != nil {
		logger.Warn("failed to create state directory",
			"path", s.basePath,
			"error", err.Error(),
		)
		return fmt.Errorf("creating state directory: %w", err)
	}

	state.PipelineID = pipelineID
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		logger.Warn("failed to write temp state file",
			"pipeline_id", pipelineID,
			"path", tempPath,
			"error", err.Error(),
		)
		return fmt.Errorf("writing temp state file: %w", err)
	}

	// Rename temp file to final path (atomic on POSIX)
	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		logger.Warn("failed to rename state file",
			"pipeline_id", pipelineID,
			"temp_path", tempPath,
			"final_path", filePath,
			"error", err.Error(),
		)
		return fmt.Errorf("renaming state file: %w", err)
	}

	logger.Debug("state saved",
		"pipeline_id", pipelineID,
		"path", filePath,
		"status", state.LastStatus,
	)
	return nil
}

// Load retrieves the state for a pipeline.
// Returns nil, nil if the state file doesn't exist (never run).
func (s *StateStore) Load(pipelineID string) (*RunState, error) {
	filePath, err := s.filePath(pipelineID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(pipelineID, filePath)
}

func (s *StateStore) load(pipelineID, filePath string) (*RunState, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("no state file found (never run)",
				"pipeline_id", pipelineID,
				"path", filePath,
			)
			return nil, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		logger.Warn("failed to unmarshal state",
			"pipeline_id", pipelineID,
			"path", filePath,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("unmarshaling state: %w", err)
	}
	return &state, nil
}

// Record folds an execution result into the pipeline's state.
// Dry runs are not recorded.
func (s *StateStore) Record(result *connector.ExecutionResult) error {
	if result == nil {
		return ErrNilState
	}
	if result.DryRun {
		return nil
	}
	filePath, err := s.filePath(result.PipelineID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load(result.PipelineID, filePath)
	if err != nil {
		// A corrupt state file is replaced rather than blocking every run.
		logger.Warn("discarding unreadable state",
			"pipeline_id", result.PipelineID,
			"error", err.Error(),
		)
		state = nil
	}
	if state == nil {
		state = &RunState{}
	}

	state.LastRunAt = result.StartedAt
	state.LastStatus = result.Status
	state.LastError = result.Error
	state.RecordsProcessed = result.RecordsProcessed
	state.Loaded = result.Loaded
	state.Destination = result.Destination
	state.Criteria = result.Criteria
	state.Runs++
	if result.Error == nil {
		completed := result.CompletedAt
		state.LastSuccessAt = &completed
	} else {
		state.Failures++
	}
	state.UpdatedAt = time.Now()

	return s.save(result.PipelineID, filePath, state)
}

// List returns the state of every recorded pipeline, sorted by ID.
func (s *StateStore) List() ([]*RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing state directory: %w", err)
	}

	var states []*RunState
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, stateExt) {
			continue
		}
		id := strings.TrimSuffix(name, stateExt)
		filePath, err := s.filePath(id)
		if err != nil {
			continue
		}
		state, err := s.load(id, filePath)
		if err != nil {
			return nil, err
		}
		if state != nil {
			states = append(states, state)
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].PipelineID < states[j].PipelineID })
	return states, nil
}

// Delete removes the state file for a pipeline.
// Returns nil if the file doesn't exist.
func (s *StateStore) Delete(pipelineID string) error {
	filePath, err := s.filePath(pipelineID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("deleting state file: %w", err)
	}

	logger.Debug("state deleted",
		"pipeline_id", pipelineID,
		"path", filePath,
	)
	return nil
}

// Exists checks if a state file exists for a pipeline.
func (s *StateStore) Exists(pipelineID string) (bool, error) {
	filePath, err := s.filePath(pipelineID)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := os.Stat(filePath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking state file: %w", err)
	}
	return true, nil
}
