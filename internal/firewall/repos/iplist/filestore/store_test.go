package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/ipguard/internal/firewall/domain"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist/storetest"
)

func TestFileStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) iplist.Store {
		st, err := New(filepath.Join(t.TempDir(), "lists.json"))
		require.NoError(t, err)
		return st
	})
}

func TestFileStore_SharedBetweenInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists.json")
	ctx := context.Background()

	a, err := New(path)
	require.NoError(t, err)
	b, err := New(path)
	require.NoError(t, err)

	e, err := domain.NewEntry(domain.MustParsePattern("203.0.113.*"), domain.Blacklist, "", "a", time.Now())
	require.NoError(t, err)
	_, created, err := a.SaveEntry(ctx, e)
	require.NoError(t, err)
	require.True(t, created)

	got, err := b.LoadEntries(ctx, domain.Blacklist)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.PatternWildcard, got[0].Pattern.Kind())
}

func TestFileStore_ConcurrentWritersOnOnePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists.json")
	ctx := context.Background()

	stores := make([]iplist.Store, 2)
	for i := range stores {
		st, err := New(path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		stores[i] = st
	}

	const perStore = 50
	var created atomic.Int32
	var wg sync.WaitGroup
	for i, st := range stores {
		for j := 0; j < perStore; j++ {
			wg.Add(1)
			go func(st iplist.Store, raw string) {
				defer wg.Done()
				e, err := domain.NewEntry(domain.MustParsePattern(raw), domain.Blacklist, "", "", time.Now())
				if !assert.NoError(t, err) {
					return
				}
				_, ok, err := st.SaveEntry(ctx, e)
				if assert.NoError(t, err) && ok {
					created.Add(1)
				}
			}(st, fmt.Sprintf("10.%d.0.%d", i, j))
		}
	}
	wg.Wait()

	got, err := stores[0].LoadEntries(ctx, domain.Blacklist)
	require.NoError(t, err)
	assert.Equal(t, int32(2*perStore), created.Load())
	assert.Len(t, got, 2*perStore, "no write is lost between stores")
}

func TestFileStore_WriteHonorsContextWhileLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists.json")
	st, err := New(path)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	// another holder of the lock, as a second process would be
	other := flock.New(path + ".lock")
	require.NoError(t, other.Lock())
	defer func() { _ = other.Unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	e, err := domain.NewEntry(domain.MustParsePattern("192.0.2.1"), domain.Whitelist, "", "", time.Now())
	require.NoError(t, err)
	_, created, err := st.SaveEntry(ctx, e)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, created)
}

func TestFileStore_FileLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists.json")
	st, err := New(path)
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "file is created lazily")

	e, err := domain.NewEntry(domain.MustParsePattern("10.0.0.1"), domain.Whitelist, "", "", time.Now())
	require.NoError(t, err)
	_, _, err = st.SaveEntry(context.Background(), e)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"version": 1`)
	assert.Contains(t, string(b), `"pattern": "10.0.0.1"`)
}

func TestNew_RejectsOtherVersions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99}`), 0o600))

	_, err := New(path)
	assert.ErrorIs(t, err, ErrVersion)
}

func TestNew_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))

	_, err := New(path)
	assert.Error(t, err)
}
