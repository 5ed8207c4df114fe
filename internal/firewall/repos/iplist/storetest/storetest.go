// Package storetest holds the behavior every iplist.Store backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/ipguard/internal/firewall/domain"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist"
)

// Factory opens a fresh, empty store. Implementations register cleanup on t.
type Factory func(t *testing.T) iplist.Store

var addedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func entry(t *testing.T, raw string, list domain.ListKind, note string) domain.Entry {
	t.Helper()
	e, err := domain.NewEntry(domain.MustParsePattern(raw), list, note, "storetest", addedAt)
	require.NoError(t, err)
	return e
}

func patterns(entries []domain.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Pattern.String())
	}
	return out
}

// Run exercises newStore against the shared Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("EmptyList", func(t *testing.T) {
		s := newStore(t)
		got, err := s.LoadEntries(context.Background(), domain.Whitelist)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("SaveAndLoadKeepsInsertionOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, raw := range []string{"192.168.1.1", "10.0.0.0/8", "172.16.*.*", "2001:db8::/32"} {
			_, created, err := s.SaveEntry(ctx, entry(t, raw, domain.Whitelist, "note "+raw))
			require.NoError(t, err)
			assert.True(t, created)
		}

		got, err := s.LoadEntries(ctx, domain.Whitelist)
		require.NoError(t, err)
		assert.Equal(t, []string{"192.168.1.1", "10.0.0.0/8", "172.16.*.*", "2001:db8::/32"}, patterns(got))
		assert.Equal(t, "note 10.0.0.0/8", got[1].Note)
		assert.Equal(t, domain.Whitelist, got[1].List)
		assert.Equal(t, "storetest", got[1].Source)
		assert.True(t, addedAt.Equal(got[1].AddedAt))
	})

	t.Run("SaveIsInsertIfAbsent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, created, err := s.SaveEntry(ctx, entry(t, "192.168.1.1", domain.Blacklist, "first"))
		require.NoError(t, err)
		require.True(t, created)

		again, created, err := s.SaveEntry(ctx, entry(t, "192.168.1.1", domain.Blacklist, "second"))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.Note, again.Note, "existing entry is returned unchanged")

		got, err := s.LoadEntries(ctx, domain.Blacklist)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("ListsAreIndependent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, created, err := s.SaveEntry(ctx, entry(t, "10.0.0.1", domain.Whitelist, ""))
		require.NoError(t, err)
		require.True(t, created)
		_, created, err = s.SaveEntry(ctx, entry(t, "10.0.0.1", domain.Blacklist, ""))
		require.NoError(t, err)
		assert.True(t, created, "same pattern on the other list is a new entry")

		removed, err := s.DeleteEntry(ctx, domain.MustParsePattern("10.0.0.1"), domain.Whitelist)
		require.NoError(t, err)
		assert.True(t, removed)

		wl, err := s.LoadEntries(ctx, domain.Whitelist)
		require.NoError(t, err)
		assert.Empty(t, wl)
		bl, err := s.LoadEntries(ctx, domain.Blacklist)
		require.NoError(t, err)
		assert.Equal(t, []string{"10.0.0.1"}, patterns(bl))
	})

	t.Run("DeleteReportsPresence", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		p := domain.MustParsePattern("10.1.0.0/16")

		_, _, err := s.SaveEntry(ctx, entry(t, "10.1.0.0/16", domain.Blacklist, ""))
		require.NoError(t, err)

		removed, err := s.DeleteEntry(ctx, p, domain.Blacklist)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = s.DeleteEntry(ctx, p, domain.Blacklist)
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("ReAddAfterDeleteGoesLast", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, raw := range []string{"1.1.1.1", "2.2.2.2"} {
			_, _, err := s.SaveEntry(ctx, entry(t, raw, domain.Whitelist, ""))
			require.NoError(t, err)
		}
		_, err := s.DeleteEntry(ctx, domain.MustParsePattern("1.1.1.1"), domain.Whitelist)
		require.NoError(t, err)
		_, created, err := s.SaveEntry(ctx, entry(t, "1.1.1.1", domain.Whitelist, ""))
		require.NoError(t, err)
		assert.True(t, created)

		got, err := s.LoadEntries(ctx, domain.Whitelist)
		require.NoError(t, err)
		assert.Equal(t, []string{"2.2.2.2", "1.1.1.1"}, patterns(got))
	})

	t.Run("ClearList", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, raw := range []string{"1.1.1.1", "2.2.2.0/24"} {
			_, _, err := s.SaveEntry(ctx, entry(t, raw, domain.Blacklist, ""))
			require.NoError(t, err)
		}
		_, _, err := s.SaveEntry(ctx, entry(t, "3.3.3.3", domain.Whitelist, ""))
		require.NoError(t, err)

		require.NoError(t, s.ClearList(ctx, domain.Blacklist))
		require.NoError(t, s.ClearList(ctx, domain.Blacklist), "clearing an empty list succeeds")

		bl, err := s.LoadEntries(ctx, domain.Blacklist)
		require.NoError(t, err)
		assert.Empty(t, bl)
		wl, err := s.LoadEntries(ctx, domain.Whitelist)
		require.NoError(t, err)
		assert.Len(t, wl, 1)

		_, created, err := s.SaveEntry(ctx, entry(t, "1.1.1.1", domain.Blacklist, ""))
		require.NoError(t, err)
		assert.True(t, created)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		s := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.LoadEntries(ctx, domain.Whitelist)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
