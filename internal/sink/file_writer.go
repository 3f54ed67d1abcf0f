package sink

import (
	"encoding/json"
	"os"

	"loadprobe/internal/record"
)

// FileWriter writes request rows and run status to JSONL files.
type FileWriter struct {
	reqFile    *os.File
	statusFile *os.File
	reqEnc     *json.Encoder
	statusEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. statusPath may be empty to skip status lines.
func NewFileWriter(requestPath, statusPath string) (*FileWriter, error) {
	rf, err := os.Create(requestPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{reqFile: rf, reqEnc: json.NewEncoder(rf)}
	if statusPath != "" {
		sf, err := os.Create(statusPath)
		if err != nil {
			rf.Close()
			return nil, err
		}
		fw.statusFile = sf
		fw.statusEnc = json.NewEncoder(sf)
	}
	return fw, nil
}

// WriteRequest logs a single request row.
func (f *FileWriter) WriteRequest(row record.RequestRow) error {
	return f.reqEnc.Encode(row)
}

// WriteRequests logs multiple request rows.
func (f *FileWriter) WriteRequests(rows []record.RequestRow) error {
	for _, r := range rows {
		if err := f.WriteRequest(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteStatus logs a run status line, if enabled.
func (f *FileWriter) WriteStatus(st record.RunStatus) error {
	if f.statusEnc == nil {
		return nil
	}
	return f.statusEnc.Encode(st)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var err error
	if f.reqFile != nil {
		if e := f.reqFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	if f.statusFile != nil {
		if e := f.statusFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
