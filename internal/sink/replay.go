package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"loadprobe/internal/record"
)

// ReadSnapshot decodes one snapshot document from r.
func ReadSnapshot(r io.Reader) (*record.Snapshot, error) {
	var s record.Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Errors == nil {
		s.Errors = map[string]string{}
	}
	return &s, nil
}

// ReadSnapshotFile opens path and decodes the snapshot it holds.
func ReadSnapshotFile(path string) (*record.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSnapshot(f)
}

// ReplayRequests decodes a JSONL request log from r and hands each row to w.
// A speed > 0 paces rows by their recorded timestamps, accelerated by that
// factor. If speed <= 0, no artificial delay is inserted.
func ReplayRequests(r io.Reader, w RequestWriter, speed float64) (int, error) {
	dec := json.NewDecoder(r)
	var prev time.Time
	n := 0
	for {
		var row record.RequestRow
		if err := dec.Decode(&row); err != nil {
			if err == io.EOF {
				return n, nil
			}
			return n, err
		}
		if !prev.IsZero() && speed > 0 {
			diff := row.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				time.Sleep(diff)
			}
		}
		if err := w.WriteRequest(row); err != nil {
			return n, err
		}
		prev = row.Timestamp
		n++
	}
}

// ReplayRequestFile opens a JSONL request log and replays its rows.
func ReplayRequestFile(path string, w RequestWriter, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ReplayRequests(f, w, speed)
}
