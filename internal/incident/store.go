package incident

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// record is one persisted line: the incident plus, once resolved, its
// resolution and closed-at timestamp. Resolution never edits the
// incident fields in place.
type record struct {
	Incident   Incident    `json:"incident"`
	Resolution *Resolution `json:"resolution,omitempty"`
	ClosedAt   *time.Time  `json:"closed_at,omitempty"`
}

// Store persists incident records.
type Store interface {
	// Load reads all records, oldest first. A missing store is empty,
	// not an error.
	Load() ([]record, error)

	// Append adds one record to the end of the store.
	Append(r record) error

	// Rewrite replaces the store's full contents atomically. Used when
	// a resolution updates an existing logical incident.
	Rewrite(records []record) error
}

// FileStore is a line-delimited JSON store on the local filesystem.
type FileStore struct {
	path string
}

// NewFileStore creates the parent directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create incident directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load implements Store. Malformed lines are skipped.
func (s *FileStore) Load() (records []record, err error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	return records, scanner.Err()
}

// Append implements Store.
func (s *FileStore) Append(r record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open incident store: %w", err)
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // sync already called, close best-effort
	}()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write incident: %w", err)
	}
	return f.Sync()
}

// Rewrite implements Store via write-to-temp-and-rename.
func (s *FileStore) Rewrite(records []record) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".tmp-incidents-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath) //nolint:errcheck // cleanup in error path
		}
	}()

	enc := json.NewEncoder(tmp)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			_ = tmp.Close() //nolint:errcheck // cleanup in error path
			return fmt.Errorf("encode incident: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace incident store: %w", err)
	}

	success = true
	return nil
}

// MemStore is an in-memory Store for tests and ephemeral sessions.
type MemStore struct {
	records []record
}

func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) Load() ([]record, error) {
	out := make([]record, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *MemStore) Append(r record) error {
	s.records = append(s.records, r)
	return nil
}

func (s *MemStore) Rewrite(records []record) error {
	s.records = make([]record, len(records))
	copy(s.records, records)
	return nil
}
