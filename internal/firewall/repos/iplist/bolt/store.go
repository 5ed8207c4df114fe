package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"
	bberrors "go.etcd.io/bbolt/errors"

	"github.com/haukened/ipguard/internal/firewall/domain"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist"
)

// Each list owns two buckets: "<list>" maps a big-endian sequence number to
// the JSON entry, so a cursor walk yields insertion order, and "<list>.idx"
// maps the canonical pattern to its sequence number.
func buckets(list domain.ListKind) (entries, index []byte) {
	name := list.String()
	return []byte(name), []byte(name + ".idx")
}

// boltStore implements iplist.Store using bbolt.
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (iplist.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, l := range domain.ListKinds {
			eb, ib := buckets(l)
			if _, err := tx.CreateBucketIfNotExists(eb); err != nil {
				return err
			}
			if _, err := tx.CreateBucketIfNotExists(ib); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

func (s *boltStore) LoadEntries(ctx context.Context, list domain.ListKind) ([]domain.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	eb, _ := buckets(list)
	var out []domain.Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(eb)
		if b == nil {
			return fmt.Errorf("bucket %q missing", eb)
		}
		return b.ForEach(func(k, v []byte) error {
			var e domain.Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode entry %x: %w", k, err)
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

func (s *boltStore) SaveEntry(ctx context.Context, e domain.Entry) (domain.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Entry{}, false, err
	}
	eb, ib := buckets(e.List)
	stored, created := e, false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		entries, index := tx.Bucket(eb), tx.Bucket(ib)
		if entries == nil || index == nil {
			return fmt.Errorf("bucket %q missing", eb)
		}
		key := []byte(e.Pattern.String())
		if seq := index.Get(key); seq != nil {
			return json.Unmarshal(entries.Get(seq), &stored)
		}

		n, err := entries.NextSequence()
		if err != nil {
			return err
		}
		seq := make([]byte, 8)
		binary.BigEndian.PutUint64(seq, n)
		val, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := entries.Put(seq, val); err != nil {
			return err
		}
		created = true
		return index.Put(key, seq)
	})
	if err != nil {
		return domain.Entry{}, false, err
	}
	return stored, created, nil
}

func (s *boltStore) DeleteEntry(ctx context.Context, p domain.Pattern, list domain.ListKind) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	eb, ib := buckets(list)
	var removed bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		entries, index := tx.Bucket(eb), tx.Bucket(ib)
		if entries == nil || index == nil {
			return fmt.Errorf("bucket %q missing", eb)
		}
		key := []byte(p.String())
		seq := index.Get(key)
		if seq == nil {
			return nil
		}
		// seq points into the tx page; copy before mutating the bucket
		seq = append([]byte(nil), seq...)
		if err := entries.Delete(seq); err != nil {
			return err
		}
		removed = true
		return index.Delete(key)
	})
	return removed, err
}

// ClearList recreates both buckets of list. Sequence numbers restart.
func (s *boltStore) ClearList(ctx context.Context, list domain.ListKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	eb, ib := buckets(list)
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{eb, ib} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bberrors.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ iplist.Store = (*boltStore)(nil)
