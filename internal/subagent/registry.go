package subagent

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Registry is the durable, single-file JSON record of every run this host
// has ever admitted (§4.7, §5). It is rewritten wholesale on every mutation
// via write-to-temp-then-rename, the same atomicity pattern as the
// sessions.Manager's per-session files.
type Registry struct {
	mu   sync.Mutex
	path string
}

// NewRegistry opens a registry backed by path. The file need not exist yet;
// LoadAll returns an empty slice until the first Upsert creates it.
func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

// LoadAll reads every persisted record, oldest write order preserved.
func (r *Registry) LoadAll() ([]RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readLocked()
}

func (r *Registry) readLocked() ([]RunRecord, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var records []RunRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Upsert inserts or replaces the record matching RunID and rewrites the
// file atomically. Persistence failures are swallowed by callers (§7 —
// registry writes never fail an in-flight run), so this returns an error
// only for callers that want to log it.
func (r *Registry) Upsert(record RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.readLocked()
	if err != nil {
		records = nil
	}
	replaced := false
	for i, existing := range records {
		if existing.RunID == record.RunID {
			records[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, record)
	}
	return r.writeLocked(records)
}

// Remove deletes a record by RunID and rewrites the file atomically.
func (r *Registry) Remove(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.readLocked()
	if err != nil {
		return err
	}
	out := records[:0]
	for _, existing := range records {
		if existing.RunID != runID {
			out = append(out, existing)
		}
	}
	return r.writeLocked(out)
}

func (r *Registry) writeLocked(records []RunRecord) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(dir, "subagents-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err := os.Rename(tmpPath, r.path); err != nil {
		return err
	}
	cleanup = false
	return nil
}
