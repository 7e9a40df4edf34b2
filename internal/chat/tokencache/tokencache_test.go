package tokencache_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/barchat/internal/chat/tokencache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestExpireAfterWrite(t *testing.T) {
	clk := newClock()
	c := tokencache.New(tokencache.WithClock(clk.Now))

	c.Put(tokencache.KindAccess, "u1", "tok", tokencache.DefaultAccessTTL)

	clk.Advance(4*time.Minute + 59*time.Second)
	got, ok := c.Get(tokencache.KindAccess, "u1")
	require.True(t, ok)
	require.Equal(t, "tok", got)

	// Reads do not extend the window.
	clk.Advance(2 * time.Second)
	_, ok = c.Get(tokencache.KindAccess, "u1")
	require.False(t, ok)
	require.Zero(t, c.Len(), "expired entry is removed on read")
}

func TestKindsAreIndependent(t *testing.T) {
	c := tokencache.New()
	c.Put(tokencache.KindAccess, "u1", "access", time.Minute)
	c.Put(tokencache.KindGuestRefresh, "u1", "refresh", time.Hour)

	a, _ := c.Get(tokencache.KindAccess, "u1")
	r, _ := c.Get(tokencache.KindGuestRefresh, "u1")
	require.Equal(t, "access", a)
	require.Equal(t, "refresh", r)

	c.Invalidate(tokencache.KindAccess, "u1")
	_, ok := c.Get(tokencache.KindAccess, "u1")
	require.False(t, ok)
	_, ok = c.Get(tokencache.KindGuestRefresh, "u1")
	require.True(t, ok)

	c.InvalidateSubject("u1")
	require.Zero(t, c.Len())
}

func TestOverwriteReplacesRecord(t *testing.T) {
	c := tokencache.New()
	first := c.Put(tokencache.KindAccess, "u1", "old", time.Minute)
	c.Put(tokencache.KindAccess, "u1", "new", time.Minute)

	// The published record a reader holds is never modified.
	require.Equal(t, "old", first.Token)

	rec, ok := c.Lookup(tokencache.KindAccess, "u1")
	require.True(t, ok)
	require.Equal(t, "new", rec.Token)
	require.Equal(t, 1, c.Len(), "one live access record per user")
}

func TestPutIfNewer(t *testing.T) {
	clk := newClock()
	c := tokencache.New(tokencache.WithClock(clk.Now))
	now := clk.Now()

	require.True(t, c.PutIfNewer(tokencache.KindAccess, "u1", "a", now.Add(5*time.Minute)))
	require.False(t, c.PutIfNewer(tokencache.KindAccess, "u1", "older", now.Add(2*time.Minute)))
	require.True(t, c.PutIfNewer(tokencache.KindAccess, "u1", "newer", now.Add(6*time.Minute)))

	got, _ := c.Get(tokencache.KindAccess, "u1")
	require.Equal(t, "newer", got)

	require.False(t, c.PutIfNewer(tokencache.KindAccess, "u2", "dead", now), "already expired")
}

func TestPutIfNewerSinceRefusesAfterInvalidate(t *testing.T) {
	clk := newClock()
	c := tokencache.New(tokencache.WithClock(clk.Now))
	exp := clk.Now().Add(5 * time.Minute)

	stamp := c.Stamp("u1")
	require.True(t, c.PutIfNewerSince(stamp, tokencache.KindAccess, "u1", "a", exp))

	stamp = c.Stamp("u1")
	c.Invalidate(tokencache.KindAccess, "u1")
	require.False(t, c.PutIfNewerSince(stamp, tokencache.KindAccess, "u1", "a", exp))
	_, ok := c.Get(tokencache.KindAccess, "u1")
	require.False(t, ok)

	require.True(t, c.PutIfNewerSince(c.Stamp("u1"), tokencache.KindAccess, "u1", "a", exp))
}

func TestEvictionLooksLikeMiss(t *testing.T) {
	c := tokencache.New(tokencache.WithShards(1), tokencache.WithMaxEntries(2))

	c.Put(tokencache.KindAccess, "u1", "t1", time.Hour)
	c.Put(tokencache.KindAccess, "u2", "t2", time.Hour)
	c.Put(tokencache.KindAccess, "u3", "t3", time.Hour)

	require.Equal(t, 2, c.Len())
	_, ok := c.Get(tokencache.KindAccess, "u1")
	require.False(t, ok, "oldest write evicted")
	_, ok = c.Get(tokencache.KindAccess, "u3")
	require.True(t, ok)

	// Rewriting u2 makes it newest, so u3 goes next.
	c.Put(tokencache.KindAccess, "u2", "t2b", time.Hour)
	c.Put(tokencache.KindAccess, "u4", "t4", time.Hour)
	_, ok = c.Get(tokencache.KindAccess, "u3")
	require.False(t, ok)
	_, ok = c.Get(tokencache.KindAccess, "u2")
	require.True(t, ok)
}

func TestSweep(t *testing.T) {
	clk := newClock()
	c := tokencache.New(tokencache.WithClock(clk.Now))

	c.Put(tokencache.KindAccess, "short", "x", time.Minute)
	c.Put(tokencache.KindGuestRefresh, "long", "y", time.Hour)

	clk.Advance(2 * time.Minute)
	require.Equal(t, 1, c.Sweep())
	require.Equal(t, 1, c.Len())
}

func TestConcurrentAccess(t *testing.T) {
	c := tokencache.New(tokencache.WithShards(8))

	var (
		wg   sync.WaitGroup
		hits atomic.Int64
	)
	for w := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				user := fmt.Sprintf("u%d", (w*500+i)%97)
				tok := fmt.Sprintf("%d-%d", w, i)
				c.Put(tokencache.KindAccess, user, tok, time.Minute)
				if rec, ok := c.Lookup(tokencache.KindAccess, user); ok {
					assert.Equal(t, user, rec.Subject)
					hits.Add(1)
				}
				if i%50 == 0 {
					c.Invalidate(tokencache.KindAccess, user)
				}
			}
		}()
	}
	wg.Wait()

	require.Positive(t, hits.Load())
	require.LessOrEqual(t, c.Len(), 97)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "access", tokencache.KindAccess.String())
	require.Equal(t, "guest_refresh", tokencache.KindGuestRefresh.String())
}
