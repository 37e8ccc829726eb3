package feature

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned when an operation names an unknown feature id.
var ErrNotFound = errors.New("feature not found")

// Store owns the ordered feature collection. Every mutation is flushed to
// disk before it returns; a write failure is a hard failure of the mutation
// because a lost write would corrupt the work queue.
type Store struct {
	path     string
	features []Feature
	log      *zap.Logger
}

// Open loads the store from path. A missing file yields an empty store.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{path: path, log: log}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the document from disk, discarding in-memory state.
// The scheduler calls this between iterations so external edits to the
// file are picked up.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.features = nil
			return nil
		}
		return fmt.Errorf("read feature list: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse feature list: %w", err)
	}
	s.features = doc.Features
	s.log.Debug("loaded features", zap.Int("count", len(s.features)))
	return nil
}

// save rewrites the full document. Write-then-rename so a crash mid-write
// never truncates the previous file.
func (s *Store) save() error {
	doc := document{
		Version:   schemaVersion,
		UpdatedAt: time.Now(),
		Features:  s.features,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal feature list: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create feature list directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".feature_list-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp feature list: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write feature list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close feature list: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace feature list: %w", err)
	}
	return nil
}

// Path returns the backing document path.
func (s *Store) Path() string { return s.path }

// Len returns the number of features in the store.
func (s *Store) Len() int { return len(s.features) }

// Add appends a new feature and persists the store. The id derives from the
// current store length, so ids stay monotonic across restarts.
func (s *Store) Add(description string, steps []string, category string, priority int) (Feature, error) {
	if category == "" {
		category = "functional"
	}
	now := time.Now()
	f := Feature{
		ID:          fmt.Sprintf("feature_%03d", len(s.features)+1),
		Category:    category,
		Description: description,
		Priority:    clampPriority(priority),
		Steps:       steps,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.features = append(s.features, f)
	if err := s.save(); err != nil {
		// Roll back so memory matches disk.
		s.features = s.features[:len(s.features)-1]
		return Feature{}, err
	}
	s.log.Info("added feature", zap.String("id", f.ID), zap.String("description", description))
	return f, nil
}

// Get returns the feature with the given id. Absence is not an error.
func (s *Store) Get(id string) (Feature, bool) {
	for _, f := range s.features {
		if f.ID == id {
			return f, true
		}
	}
	return Feature{}, false
}

func (s *Store) index(id string) int {
	for i := range s.features {
		if s.features[i].ID == id {
			return i
		}
	}
	return -1
}

// NextIncomplete returns the highest-priority feature that has not passed
// yet. Ties resolve by insertion order (stable sort). This is the sole
// work-selection policy.
func (s *Store) NextIncomplete() (Feature, bool) {
	incomplete := make([]Feature, 0, len(s.features))
	for _, f := range s.features {
		if !f.Passes {
			incomplete = append(incomplete, f)
		}
	}
	if len(incomplete) == 0 {
		return Feature{}, false
	}
	sort.SliceStable(incomplete, func(i, j int) bool {
		return incomplete[i].Priority < incomplete[j].Priority
	})
	return incomplete[0], true
}

// MarkComplete records a validation pass. completed_at is set on every call
// but never regresses to nil.
func (s *Store) MarkComplete(id string, notes string) error {
	i := s.index(id)
	if i < 0 {
		s.log.Error("feature not found", zap.String("id", id))
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := time.Now()
	s.features[i].Passes = true
	s.features[i].CompletedAt = &now
	s.features[i].UpdatedAt = now
	if notes != "" {
		s.features[i].Notes = notes
	}
	if err := s.save(); err != nil {
		return err
	}
	s.log.Info("feature marked complete", zap.String("id", id))
	return nil
}

// MarkFailed records a validation failure. completed_at is left untouched.
func (s *Store) MarkFailed(id string, reason string) error {
	i := s.index(id)
	if i < 0 {
		s.log.Error("feature not found", zap.String("id", id))
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.features[i].Passes = false
	s.features[i].Notes = "FAILED: " + reason
	s.features[i].UpdatedAt = time.Now()
	if err := s.save(); err != nil {
		return err
	}
	s.log.Warn("feature marked failed", zap.String("id", id), zap.String("reason", reason))
	return nil
}

// UpdateSteps replaces a feature's validation steps.
func (s *Store) UpdateSteps(id string, steps []string) error {
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.features[i].Steps = steps
	s.features[i].UpdatedAt = time.Now()
	return s.save()
}

// List returns features, optionally filtered by category. Store order.
func (s *Store) List(category string) []Feature {
	if category == "" {
		out := make([]Feature, len(s.features))
		copy(out, s.features)
		return out
	}
	var out []Feature
	for _, f := range s.features {
		if f.Category == category {
			out = append(out, f)
		}
	}
	return out
}

// ClearCompleted removes every passing feature and returns how many were
// removed.
func (s *Store) ClearCompleted() (int, error) {
	kept := s.features[:0]
	for _, f := range s.features {
		if !f.Passes {
			kept = append(kept, f)
		}
	}
	removed := len(s.features) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	s.features = kept
	if err := s.save(); err != nil {
		return 0, err
	}
	s.log.Info("removed completed features", zap.Int("count", removed))
	return removed, nil
}

// Summary reports completion progress. Percentage is 0.0 for an empty store.
func (s *Store) Summary() Summary {
	total := len(s.features)
	completed := 0
	for _, f := range s.features {
		if f.Passes {
			completed++
		}
	}
	pct := 0.0
	if total > 0 {
		pct = float64(completed) / float64(total) * 100
	}
	return Summary{
		Total:      total,
		Completed:  completed,
		Pending:    total - completed,
		Percentage: pct,
	}
}
