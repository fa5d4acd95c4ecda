package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// snapshotFile is the on-disk layout of the JSON snapshot.
type snapshotFile struct {
	Version int      `json:"version"`
	Records []Record `json:"records"`
}

const (
	snapshotVersion = 1
	lockRetryDelay  = 50 * time.Millisecond
)

// FilePersister stores the full record set as a single JSON document. Writes
// go through a temp file plus rename, guarded by an advisory file lock so a
// second process (or a stray restart overlap) cannot interleave snapshots.
type FilePersister struct {
	path string
	lock *flock.Flock
}

// NewFilePersister prepares a persister for the given snapshot path.
func NewFilePersister(path string) (*FilePersister, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("users: create snapshot dir: %w", err)
	}
	return &FilePersister{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// LoadAll reads the snapshot. A missing file yields an empty record set.
func (p *FilePersister) LoadAll(ctx context.Context) ([]Record, error) {
	locked, err := p.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("users: acquire snapshot lock: %w", err)
	}
	if !locked {
		return nil, errors.New("users: snapshot lock busy")
	}
	defer p.lock.Unlock()

	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("users: read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("users: parse snapshot: %w", err)
	}
	return snap.Records, nil
}

// SaveAll atomically replaces the snapshot with the given records.
func (p *FilePersister) SaveAll(ctx context.Context, records []Record) error {
	locked, err := p.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("users: acquire snapshot lock: %w", err)
	}
	if !locked {
		return errors.New("users: snapshot lock busy")
	}
	defer p.lock.Unlock()

	data, err := json.MarshalIndent(snapshotFile{
		Version: snapshotVersion,
		Records: records,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("users: encode snapshot: %w", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("users: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("users: replace snapshot: %w", err)
	}
	return nil
}
