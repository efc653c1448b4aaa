// Package persistence implements the on-disk rule store: one JSON
// document per rule, written atomically (temp file + fsync + rename) so
// a process kill between writes never leaves a half-written rule.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/felixgeelhaar/meridian/internal/rules/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/security"
	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// FileRuleStore persists rules as one <ruleId>.json file per rule inside
// dir. It implements domain.RuleRepository.
type FileRuleStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileRuleStore ensures dir exists and returns a store rooted there.
func NewFileRuleStore(dir string) (*FileRuleStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("rule store: create directory: %w", err)
	}
	return &FileRuleStore{dir: dir}, nil
}

func (s *FileRuleStore) pathFor(id valuetype.RuleID) string {
	return filepath.Join(s.dir, id.String()+".json")
}

// Get reads a single rule by id.
func (s *FileRuleStore) Get(_ context.Context, id valuetype.RuleID) (domain.Rule, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := security.SafeReadFileInDir(s.pathFor(id), s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Rule{}, false, nil
		}
		return domain.Rule{}, false, err
	}
	var doc ruleDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Rule{}, false, fmt.Errorf("rule store: decode %s: %w", id, err)
	}
	r, err := doc.toDomain()
	return r, true, err
}

// List reads every rule file in dir, in lexicographic filename order,
// i.e. by rule id. Rule ids are random UUIDs, so this is not the order
// the rules were added in; RuleEngine keeps insertion order in its own
// index for rules added while it runs, but builds that index from this
// order at startup.
func (s *FileRuleStore) List(_ context.Context) ([]domain.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("rule store: list directory: %w", err)
	}
	var out []domain.Rule
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".json") || strings.HasSuffix(ent.Name(), ".tmp") {
			continue
		}
		raw, err := security.SafeReadFileInDir(filepath.Join(s.dir, ent.Name()), s.dir)
		if err != nil {
			return nil, fmt.Errorf("rule store: read %s: %w", ent.Name(), err)
		}
		var doc ruleDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("rule store: decode %s: %w", ent.Name(), err)
		}
		r, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Save writes r atomically: encode to a temp file in the same directory,
// fsync, then rename over the final path. Rename is atomic on POSIX
// filesystems, so a reader never observes a partially-written document.
func (s *FileRuleStore) Save(_ context.Context, r domain.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := fromDomain(r)
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("rule store: encode %s: %w", r.ID, err)
	}

	final := s.pathFor(r.ID)
	tmp, err := os.CreateTemp(s.dir, r.ID.String()+".*.tmp")
	if err != nil {
		return fmt.Errorf("rule store: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("rule store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("rule store: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("rule store: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return fmt.Errorf("rule store: rename into place: %w", err)
	}
	return nil
}

// Delete removes a rule's file. Deleting a nonexistent rule is not an
// error.
func (s *FileRuleStore) Delete(_ context.Context, id valuetype.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.pathFor(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rule store: delete %s: %w", id, err)
	}
	return nil
}

var _ domain.RuleRepository = (*FileRuleStore)(nil)
