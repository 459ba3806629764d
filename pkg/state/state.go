// Package state persists build run records under the project state directory
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pybundle/pybundle/pkg/types"
)

// ErrNoState indicates no run has been recorded yet
var ErrNoState = errors.New("no build state recorded")

// RunRecord is the persisted outcome of one pipeline run
type RunRecord struct {
	RunID         string            `json:"runId"`
	Product       string            `json:"product"`
	Status        types.BuildStatus `json:"status"`
	Stage         string            `json:"stage,omitempty"`
	StartedAt     time.Time         `json:"startedAt"`
	Duration      time.Duration     `json:"duration"`
	LastError     string            `json:"lastError,omitempty"`
	ArtifactPath  string            `json:"artifactPath,omitempty"`
	ArtifactBytes int64             `json:"artifactBytes,omitempty"`
	ArtifactFiles int               `json:"artifactFiles,omitempty"`
	ProcessID     int               `json:"processId"`
	RunCount      int               `json:"runCount"`
	FailureCount  int               `json:"failureCount"`
}

// Manager reads and writes run records
type Manager struct {
	stateDir string
	mu       sync.Mutex
}

// NewManager creates a state manager rooted at the project directory.
// Records live under <root>/.pybundle/state.
func NewManager(projectRoot string) *Manager {
	return &Manager{stateDir: filepath.Join(projectRoot, ".pybundle", "state")}
}

// Begin creates a new running record, preserving counters from the
// previous record when one exists.
func (m *Manager) Begin(product string) *RunRecord {
	rec := &RunRecord{
		RunID:     uuid.NewString(),
		Product:   product,
		Status:    types.BuildStatusRunning,
		StartedAt: time.Now(),
		ProcessID: os.Getpid(),
		RunCount:  1,
	}
	if prev, err := m.Read(product); err == nil {
		rec.RunCount = prev.RunCount + 1
		rec.FailureCount = prev.FailureCount
	}
	return rec
}

// Write persists a record, creating the state directory on first use
func (m *Manager) Write(rec *RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Write to temp file then rename for atomicity
	path := m.recordPath(rec.Product)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return os.Rename(tmp, path)
}

// Read loads the latest record for a product
func (m *Manager) Read(product string) (*RunRecord, error) {
	data, err := os.ReadFile(m.recordPath(product))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoState
		}
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	return &rec, nil
}

// Remove deletes the record for a product
func (m *Manager) Remove(product string) error {
	err := os.Remove(m.recordPath(product))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (m *Manager) recordPath(product string) string {
	return filepath.Join(m.stateDir, product+".state.json")
}
