// Package filestore implements iplist.Store as a single JSON document that is
// rewritten atomically on every change.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	renameio "github.com/google/renameio/v2"

	"github.com/haukened/ipguard/internal/firewall/domain"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist"
)

// fileVersion is the on-disk format version.
//
// NOTE: Do not change fields of fileData without incrementing it.
const fileVersion = 1

// ErrVersion is returned when the file was written by an incompatible format.
var ErrVersion = errors.New("filestore: unsupported file version")

type fileData struct {
	Version   int            `json:"version"`
	Whitelist []domain.Entry `json:"whitelist"`
	Blacklist []domain.Entry `json:"blacklist"`
}

func (d *fileData) list(l domain.ListKind) *[]domain.Entry {
	if l == domain.Whitelist {
		return &d.Whitelist
	}
	return &d.Blacklist
}

// lockRetryDelay is how often a blocked writer retries the file lock.
const lockRetryDelay = 5 * time.Millisecond

// fileStore re-reads the file on every call so edits by other processes are
// picked up. Every read-modify-write holds mu, which orders the goroutines of
// this process, and then an OS lock on "<path>.lock", which orders processes
// and other stores opened on the same path.
type fileStore struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

// New returns a store backed by the JSON file at path. The file is created on
// the first write; an existing file must carry a supported version.
func New(path string) (iplist.Store, error) {
	s := &fileStore{path: path, lock: flock.New(path + ".lock")}
	if _, err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) Close() error { return s.lock.Close() }

// update runs fn between a read and, when fn reports a change, a write of the
// document, with both locks held.
func (s *fileStore) update(ctx context.Context, fn func(data *fileData) (changed bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("locking %s: %w", s.lock.Path(), err)
	}
	if !ok {
		return fmt.Errorf("locking %s: not acquired", s.lock.Path())
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := s.read()
	if err != nil {
		return err
	}
	if !fn(data) {
		return nil
	}
	return s.write(data)
}

// read loads the document. A missing file is an empty document.
func (s *fileStore) read() (*fileData, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &fileData{Version: fileVersion}, nil
		}
		return nil, err
	}

	data := &fileData{}
	if err := json.Unmarshal(b, data); err != nil {
		return nil, fmt.Errorf("decoding json: %w", err)
	}
	if data.Version != fileVersion {
		return nil, fmt.Errorf("%w: version %d is different from %d", ErrVersion, data.Version, fileVersion)
	}
	return data, nil
}

func (s *fileStore) write(data *fileData) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	return renameio.WriteFile(s.path, b, 0o600)
}

func (s *fileStore) LoadEntries(ctx context.Context, list domain.ListKind) ([]domain.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return nil, err
	}
	return *data.list(list), nil
}

func (s *fileStore) SaveEntry(ctx context.Context, e domain.Entry) (domain.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Entry{}, false, err
	}
	stored, created := e, false
	err := s.update(ctx, func(data *fileData) bool {
		entries := data.list(e.List)
		for _, existing := range *entries {
			if existing.Pattern == e.Pattern {
				stored = existing
				return false
			}
		}
		*entries = append(*entries, e)
		created = true
		return true
	})
	if err != nil {
		return domain.Entry{}, false, err
	}
	return stored, created, nil
}

func (s *fileStore) DeleteEntry(ctx context.Context, p domain.Pattern, list domain.ListKind) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	removed := false
	err := s.update(ctx, func(data *fileData) bool {
		entries := data.list(list)
		for i, existing := range *entries {
			if existing.Pattern == p {
				*entries = append((*entries)[:i], (*entries)[i+1:]...)
				removed = true
				return true
			}
		}
		return false
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func (s *fileStore) ClearList(ctx context.Context, list domain.ListKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(ctx, func(data *fileData) bool {
		*data.list(list) = nil
		return true
	})
}

var _ iplist.Store = (*fileStore)(nil)
