package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RecordWriter stores one JSON document per cycle under
// <base>/YYYY/MM/DD/<SYMBOL>_<INTERVAL>_<HHMMSS>.json. Files are created
// exclusively: an existing record for the same timestamp is never
// overwritten.
type RecordWriter struct {
	base string
	loc  *time.Location
}

// NewRecordWriter creates a writer rooted at base. Paths use the wall clock
// of loc.
func NewRecordWriter(base string, loc *time.Location) *RecordWriter {
	if loc == nil {
		loc = time.UTC
	}
	return &RecordWriter{base: base, loc: loc}
}

// Path returns the record location for a cycle.
func (w *RecordWriter) Path(symbol, interval string, ts time.Time) string {
	ts = ts.In(w.loc)
	name := fmt.Sprintf("%s_%s_%s.json", sanitize(symbol), sanitize(interval), ts.Format("150405"))
	return filepath.Join(w.base, ts.Format("2006"), ts.Format("01"), ts.Format("02"), name)
}

// Write stores payload as JSON. created is false when a record for the same
// timestamp already exists; the existing file is left untouched. A failed
// write removes the partial file so the slot stays writable.
func (w *RecordWriter) Write(symbol, interval string, ts time.Time, payload any) (path string, created bool, err error) {
	path = w.Path(symbol, interval, ts)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, false, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return path, false, nil
	}
	if err != nil {
		return path, false, err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		f.Close()
		os.Remove(path)
		return path, false, fmt.Errorf("encode record: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return path, false, err
	}
	return path, true, nil
}

// List returns the record files written for day, sorted by name.
func (w *RecordWriter) List(day time.Time) ([]string, error) {
	day = day.In(w.loc)
	dir := filepath.Join(w.base, day.Format("2006"), day.Format("01"), day.Format("02"))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ', '=':
			return '-'
		}
		return r
	}, s)
}
