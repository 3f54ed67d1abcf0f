// Package sink holds the output writers for both pipelines: per-request
// event writers for load runs and snapshot writers for the collector.
package sink

import "loadprobe/internal/record"

// RequestWriter receives one row per completed load-test iteration.
type RequestWriter interface {
	WriteRequest(row record.RequestRow) error
}

// batchRequestWriter is implemented by writers that can take several rows at once.
type batchRequestWriter interface {
	WriteRequests(rows []record.RequestRow) error
}

// StatusWriter receives periodic live views of a load run.
type StatusWriter interface {
	WriteStatus(st record.RunStatus) error
}

// SnapshotWriter persists or renders one collector cycle.
type SnapshotWriter interface {
	WriteSnapshot(s *record.Snapshot) error
}

// AdminStatusWriter allows writers to receive admin server status updates.
type AdminStatusWriter interface {
	SetAdminStatus(listening bool)
}
