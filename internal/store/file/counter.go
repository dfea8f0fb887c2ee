// Package file keeps trade counter state and decision records on the local
// filesystem.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"fxanalyst/internal/risk"
)

// CounterStore persists risk.CounterState as a JSON document. Writes go to a
// temp file that is renamed over the target so a crash never leaves a
// truncated state file.
type CounterStore struct {
	path string
}

// NewCounterStore creates a store at path. Parent directories are created on
// first save.
func NewCounterStore(path string) *CounterStore {
	return &CounterStore{path: path}
}

// Path returns the state file location.
func (s *CounterStore) Path() string { return s.path }

// Load implements risk.Store.
func (s *CounterStore) Load(context.Context) (risk.CounterState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return risk.CounterState{}, risk.ErrNoState
	}
	if err != nil {
		return risk.CounterState{}, err
	}
	var st risk.CounterState
	if err := json.Unmarshal(data, &st); err != nil {
		return risk.CounterState{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if st.Count < 0 {
		return risk.CounterState{}, fmt.Errorf("decode %s: negative count %d", s.path, st.Count)
	}
	return st, nil
}

// Save implements risk.Store.
func (s *CounterStore) Save(_ context.Context, st risk.CounterState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
