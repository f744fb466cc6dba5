package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when no persisted record exists.
var ErrNotFound = errors.New("no results available")

// Store manages run records on disk.
type Store struct {
	baseDir string // defaults to ~/.healfactory
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// ResultsPath returns the path of the latest-run record.
func (s *Store) ResultsPath() string {
	return filepath.Join(s.baseDir, "results.json")
}

// runPath returns the archive path for a run.
func (s *Store) runPath(runID string) string {
	return filepath.Join(s.baseDir, "runs", runID, "record.json")
}

// OutputDir returns the directory for raw tool output of a run's retry cycle.
func (s *Store) OutputDir(runID string, cycle int) string {
	return filepath.Join(s.baseDir, "runs", runID, fmt.Sprintf("cycle-%d", cycle))
}

// Save writes rec as the latest result and archives it under its run ID.
func (s *Store) Save(rec *RunRecord) error {
	if rec.RunID == "" {
		return fmt.Errorf("save record: empty run id")
	}
	if err := WriteJSON(s.ResultsPath(), rec); err != nil {
		return fmt.Errorf("write results.json: %w", err)
	}
	if err := WriteJSON(s.runPath(rec.RunID), rec); err != nil {
		return fmt.Errorf("archive run %s: %w", rec.RunID, err)
	}
	return nil
}

// Latest reads the most recently saved record.
func (s *Store) Latest() (*RunRecord, error) {
	var rec RunRecord
	if err := ReadJSON(s.ResultsPath(), &rec); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Get reads the archived record for a run.
func (s *Store) Get(runID string) (*RunRecord, error) {
	var rec RunRecord
	if err := ReadJSON(s.runPath(runID), &rec); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil, err
	}
	return &rec, nil
}

// List returns archived records, newest first, optionally filtered by status.
// Pass "" for statusFilter to return all runs.
func (s *Store) List(statusFilter string) ([]RunRecord, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, "runs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read runs dir: %w", err)
	}

	var records []RunRecord
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, err := s.Get(entry.Name())
		if err != nil {
			continue // skip broken entries
		}
		if statusFilter == "" || rec.Status == statusFilter {
			records = append(records, *rec)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt > records[j].StartedAt
	})
	return records, nil
}

// SaveOutput stores raw tool output for later inspection.
func (s *Store) SaveOutput(runID string, cycle int, tool string, output string) error {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(tool) + ".log"
	return WriteAtomic(filepath.Join(s.OutputDir(runID, cycle), name), []byte(output))
}

// Delete removes all archived data for a run.
func (s *Store) Delete(runID string) error {
	dir := filepath.Join(s.baseDir, "runs", runID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return os.RemoveAll(dir)
}
