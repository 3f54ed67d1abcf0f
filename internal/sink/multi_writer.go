package sink

import (
	"github.com/hashicorp/go-multierror"

	"loadprobe/internal/record"
)

// MultiWriter fans request rows, run status and snapshots out to several writers.
type MultiWriter struct {
	requests  []RequestWriter
	snapshots []SnapshotWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(rws []RequestWriter, sws []SnapshotWriter) *MultiWriter {
	return &MultiWriter{requests: rws, snapshots: sws}
}

// WriteRequest sends a request row to all request writers.
func (mw *MultiWriter) WriteRequest(row record.RequestRow) error {
	for _, w := range mw.requests {
		if err := w.WriteRequest(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteRequests sends multiple rows to all request writers, using batch if supported.
func (mw *MultiWriter) WriteRequests(rows []record.RequestRow) error {
	for _, w := range mw.requests {
		if bw, ok := w.(batchRequestWriter); ok {
			if err := bw.WriteRequests(rows); err != nil {
				return err
			}
			continue
		}
		for _, r := range rows {
			if err := w.WriteRequest(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteStatus forwards a run status to request writers that render it.
func (mw *MultiWriter) WriteStatus(st record.RunStatus) error {
	for _, w := range mw.requests {
		if sw, ok := w.(StatusWriter); ok {
			if err := sw.WriteStatus(st); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetAdminStatus forwards the admin server state to writers that show it.
func (mw *MultiWriter) SetAdminStatus(listening bool) {
	for _, w := range mw.requests {
		if aw, ok := w.(AdminStatusWriter); ok {
			aw.SetAdminStatus(listening)
		}
	}
}

// WriteSnapshot hands s to every snapshot writer. A failing writer does not
// stop the others; all failures are returned together.
func (mw *MultiWriter) WriteSnapshot(s *record.Snapshot) error {
	var result *multierror.Error
	for _, w := range mw.snapshots {
		if err := w.WriteSnapshot(s); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Close closes every wrapped writer that holds resources.
func (mw *MultiWriter) Close() error {
	var result *multierror.Error
	seen := map[any]bool{}
	closeOne := func(w any) {
		c, ok := w.(interface{ Close() error })
		if !ok || seen[w] {
			return
		}
		seen[w] = true
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, w := range mw.requests {
		closeOne(w)
	}
	for _, w := range mw.snapshots {
		closeOne(w)
	}
	return result.ErrorOrNil()
}
