package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/ipguard/internal/firewall/domain"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist/storetest"
)

// testClient returns a client for IPGUARD_TEST_REDIS_ADDR and a key prefix
// unique to the test, skipping when no server is configured.
func testClient(t *testing.T) (*goredis.Client, string) {
	t.Helper()
	addr := os.Getenv("IPGUARD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("IPGUARD_TEST_REDIS_ADDR not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	prefix := fmt.Sprintf("ipguard-test:%d", time.Now().UnixNano())
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			_ = client.Del(ctx, keys...).Err()
		}
	})
	return client, prefix
}

func TestRedisStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) iplist.Store {
		client, prefix := testClient(t)
		return NewFromClient(client, prefix)
	})
}

func TestRedisStore_Keys(t *testing.T) {
	s := &redisStore{prefix: "p"}
	assert.Equal(t, "p:whitelist:entries", s.entriesKey(domain.Whitelist))
	assert.Equal(t, "p:blacklist:order", s.orderKey(domain.Blacklist))
	assert.Equal(t, "p:seq", s.seqKey())
}

func TestRedisStore_SkipsOrphanedOrderMembers(t *testing.T) {
	client, prefix := testClient(t)
	st := NewFromClient(client, prefix).(*redisStore)
	ctx := context.Background()

	e, err := domain.NewEntry(domain.MustParsePattern("10.0.0.1"), domain.Whitelist, "", "t", time.Now())
	require.NoError(t, err)
	_, _, err = st.SaveEntry(ctx, e)
	require.NoError(t, err)
	require.NoError(t, client.ZAdd(ctx, st.orderKey(domain.Whitelist), goredis.Z{Score: 99, Member: "10.0.0.2"}).Err())

	got, err := st.LoadEntries(ctx, domain.Whitelist)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNew_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := New(ctx, "127.0.0.1:1", "ipguard")
	assert.Error(t, err)
}
