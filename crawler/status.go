package crawler

import (
	"encoding/json"
	"os"
	"time"
)

// Status is the crawl progress snapshot written to disk so a separate
// process can monitor a long-running crawl.
type Status struct {
	Status        string    `json:"status"`
	PagesScraped  int       `json:"pages_scraped"`
	MaxPages      int       `json:"max_pages"`
	VectorsStored int       `json:"vectors_stored"`
	QueueLength   int       `json:"queue_length"`
	CurrentURL    string    `json:"current_url"`
	StartedAt     time.Time `json:"started_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Error         string    `json:"error,omitempty"`
}

// StatusFile persists crawl progress as JSON. A zero path disables writes.
type StatusFile struct {
	path string
}

// NewStatusFile creates a status writer for the given path.
func NewStatusFile(path string) *StatusFile {
	return &StatusFile{path: path}
}

// Write replaces the status file with the given snapshot. Errors are
// returned but callers treat them as non-fatal; losing a progress update
// must not stop a crawl.
func (f *StatusFile) Write(s *Status) error {
	if f == nil || f.path == "" {
		return nil
	}
	s.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o644)
}

// Read loads the last written snapshot, or a not_started status when the
// file does not exist.
func (f *StatusFile) Read() (*Status, error) {
	if f == nil || f.path == "" {
		return &Status{Status: "not_started"}, nil
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Status{Status: "not_started"}, nil
		}
		return nil, err
	}
	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
