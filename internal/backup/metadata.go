package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// MetadataFilename is the record of the most recent run, kept in the backup directory.
const MetadataFilename = "metadata.json"

// Metadata for a single backup run
type Metadata struct {
	ID          string        `json:"id"`
	Archive     string        `json:"archive"`
	Requester   string        `json:"requester"`
	Comment     string        `json:"comment,omitempty"`
	Status      string        `json:"status"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	DurationMs  int64         `json:"duration_ms"`
	SizeBytes   int64         `json:"size_bytes"`
	Files       int           `json:"files"`
	Skipped     int           `json:"skipped"`
	// Partial lists entries that were truncated by a read error.
	Partial []string `json:"partial,omitempty"`
}

// Duration returns how long the run took.
func (m Metadata) Duration() time.Duration {
	return time.Duration(m.DurationMs) * time.Millisecond
}

// LoadMetadata reads the last run record from dirPath.
func LoadMetadata(dirPath string) (Metadata, error) {
	var m Metadata
	filePath := filepath.Join(dirPath, MetadataFilename)

	jsonFile, err := os.Open(filePath)
	if err != nil {
		return m, fmt.Errorf("couldn't open metadata file %q: %w", filePath, err)
	}
	defer jsonFile.Close()

	if err := json.NewDecoder(jsonFile).Decode(&m); err != nil {
		return m, fmt.Errorf("decode metadata JSON: %w", err)
	}
	return m, nil
}

// Write stores the record in dirPath, replacing the previous one.
func (m *Metadata) Write(dirPath string) error {
	filePath := filepath.Join(dirPath, MetadataFilename)

	if err := EnsureDirectoryExist(dirPath); err != nil {
		return fmt.Errorf("ensure metadata directory %q: %w", dirPath, err)
	}

	jsonFile, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create metadata file %q: %w", filePath, err)
	}
	defer jsonFile.Close()

	encoder := json.NewEncoder(jsonFile)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(m); err != nil {
		return fmt.Errorf("encode metadata JSON: %w", err)
	}
	return nil
}
