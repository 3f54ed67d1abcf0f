package sink

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"loadprobe/internal/record"
)

// SnapshotFileLayout is the time layout embedded in snapshot file names.
const SnapshotFileLayout = "20060102_150405"

// SnapshotPath returns the file a snapshot taken at ts is written to.
func SnapshotPath(dir string, ts time.Time) string {
	return filepath.Join(dir, "metrics_"+ts.UTC().Format(SnapshotFileLayout)+".json")
}

// JSONFileWriter writes each snapshot to its own indented JSON file.
type JSONFileWriter struct {
	dir  string
	last string
}

// NewJSONFileWriter creates dir if needed and returns a writer into it.
func NewJSONFileWriter(dir string) (*JSONFileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &JSONFileWriter{dir: dir}, nil
}

// WriteSnapshot writes s to metrics_<YYYYMMDD_HHMMSS>.json. A cycle landing
// in a second that already has a file gets a _1, _2, ... suffix.
func (w *JSONFileWriter) WriteSnapshot(s *record.Snapshot) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	f, path, err := createUnique(SnapshotPath(w.dir, s.Timestamp))
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	w.last = path
	return nil
}

func createUnique(path string) (*os.File, string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 0; ; i++ {
		p := path
		if i > 0 {
			p = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		return f, p, err
	}
}

// LastPath reports the file written by the most recent WriteSnapshot.
func (w *JSONFileWriter) LastPath() string { return w.last }
