package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SourceState is what we remember about one source between runs.
type SourceState struct {
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	ContentHash  string    `json:"content_hash,omitempty"`
	FetchedAt    time.Time `json:"fetched_at,omitempty"`
}

// State is the durable validator file. A zero path keeps it in memory only.
type State struct {
	mu      sync.Mutex
	Sources map[string]*SourceState `json:"sources"`
	path    string
}

// ContentHash returns a short hash of arbitrary bytes.
func ContentHash(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:16])
}

// LoadState loads State from path, or returns a fresh one if the file does not
// exist or is corrupt.
func LoadState(path string) (*State, error) {
	if path == "" {
		return newState(""), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return newState(path), nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch state load %s: %w", path, err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return newState(path), nil
	}
	s.path = path
	if s.Sources == nil {
		s.Sources = make(map[string]*SourceState)
	}
	return &s, nil
}

func newState(path string) *State {
	return &State{path: path, Sources: make(map[string]*SourceState)}
}

// Validators returns the conditional-GET headers recorded for src.
func (s *State) Validators(src string) Validators {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.Sources[src]
	if st == nil {
		return Validators{}
	}
	return Validators{ETag: st.ETag, LastModified: st.LastModified}
}

// Record stores r's validators for src and saves the file. It reports whether
// the content changed since the previous record.
func (s *State) Record(src string, r *Result, now time.Time) (changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.Sources[src]
	changed = prev == nil || prev.ContentHash != r.ContentHash
	s.Sources[src] = &SourceState{
		ETag:         r.ETag,
		LastModified: r.LastModified,
		ContentHash:  r.ContentHash,
		FetchedAt:    now,
	}
	return changed, s.saveLocked()
}

// Forget drops src so the next fetch is unconditional.
func (s *State) Forget(src string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Sources, src)
	return s.saveLocked()
}

func (s *State) saveLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(filepath.Clean(s.path))
	tmp, err := os.CreateTemp(dir, ".fetchstate-*.json.tmp")
	if err != nil {
		return fmt.Errorf("fetch state save: create temp: %w", err)
	}
	name := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(name)
		if werr != nil {
			return fmt.Errorf("fetch state save: write: %w", werr)
		}
		return fmt.Errorf("fetch state save: close: %w", cerr)
	}
	if err := os.Rename(name, s.path); err != nil {
		os.Remove(name)
		return fmt.Errorf("fetch state save: rename: %w", err)
	}
	return nil
}
