// Package tokencache keeps short lived credentials in memory: access tokens
// for every signed-in user and refresh tokens for guests, who have no durable
// session.
//
// Entries expire a fixed TTL after they are written, regardless of reads.
// Expired entries are dropped when read or by Sweep. When a shard is over
// capacity its oldest write is evicted. An eviction is indistinguishable from
// a miss, so callers must treat a miss as "go check the durable source", never
// as "reject".
package tokencache

import (
	"container/list"
	"hash/fnv"
	"sync"
	"time"
)

// Kind separates the two credential families sharing the cache.
type Kind uint8

const (
	KindAccess Kind = iota + 1
	KindGuestRefresh
)

func (k Kind) String() string {
	switch k {
	case KindAccess:
		return "access"
	case KindGuestRefresh:
		return "guest_refresh"
	default:
		return "unknown"
	}
}

// Default TTLs, measured from the write.
const (
	DefaultAccessTTL       = 5 * time.Minute
	DefaultGuestRefreshTTL = 24 * time.Hour
	DefaultMaxEntries      = 1_000_000
)

// Record is an immutable snapshot of one cached credential. The cache never
// modifies a Record after publishing it, a refresh swaps in a new one.
type Record struct {
	Subject   string
	Token     string
	Kind      Kind
	WrittenAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record is past its TTL at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

type key struct {
	kind    Kind
	subject string
}

type entry struct {
	key  key
	rec  *Record
	elem *list.Element // position in shard.order
}

type shard struct {
	mu      sync.Mutex
	entries map[key]*entry
	order   *list.List // front = oldest write
	max     int

	// stamp counts Invalidate calls that hit this shard.
	stamp uint64
}

// Cache is a sharded TTL map. The zero value is not usable, call New.
type Cache struct {
	shards []*shard
	now    func() time.Time
}

type Option func(*options)

type options struct {
	maxEntries int
	shards     int
	now        func() time.Time
}

// WithMaxEntries bounds the total number of records.
func WithMaxEntries(n int) Option { return func(o *options) { o.maxEntries = n } }

// WithShards sets the shard count, rounded to at least 1.
func WithShards(n int) Option { return func(o *options) { o.shards = n } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

func New(opts ...Option) *Cache {
	o := options{maxEntries: DefaultMaxEntries, shards: 64, now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	o.shards = max(o.shards, 1)
	o.maxEntries = max(o.maxEntries, o.shards)

	per := (o.maxEntries + o.shards - 1) / o.shards
	c := &Cache{shards: make([]*shard, o.shards), now: o.now}
	for i := range c.shards {
		c.shards[i] = &shard{
			entries: make(map[key]*entry),
			order:   list.New(),
			max:     per,
		}
	}
	return c
}

func (c *Cache) shardFor(subject string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(subject))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Put stores token for (kind, subject), replacing any previous record. The
// TTL starts now.
func (c *Cache) Put(kind Kind, subject, token string, ttl time.Duration) *Record {
	now := c.now()
	rec := &Record{
		Subject:   subject,
		Token:     token,
		Kind:      kind,
		WrittenAt: now,
		ExpiresAt: now.Add(ttl),
	}

	s := c.shardFor(subject)
	k := key{kind: kind, subject: subject}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeLocked(k, rec)
	return rec
}

// PutIfNewer stores the token unless a live record already expires at or
// after expiresAt. Used by the slow path so a late validation of an older
// token never clobbers a fresher one written by a concurrent refresh.
func (c *Cache) PutIfNewer(kind Kind, subject, token string, expiresAt time.Time) bool {
	return c.putIfNewer(kind, subject, token, expiresAt, nil)
}

// Stamp returns a marker that changes whenever subject may have been
// invalidated. Take it before checking the durable source and hand it to
// PutIfNewerSince.
func (c *Cache) Stamp(subject string) uint64 {
	s := c.shardFor(subject)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stamp
}

// PutIfNewerSince is PutIfNewer that also refuses the write when an
// Invalidate may have touched subject after stamp was taken. Unrelated
// subjects sharing the shard can cause a refusal too, which only costs a
// later miss.
func (c *Cache) PutIfNewerSince(stamp uint64, kind Kind, subject, token string, expiresAt time.Time) bool {
	return c.putIfNewer(kind, subject, token, expiresAt, &stamp)
}

func (c *Cache) putIfNewer(kind Kind, subject, token string, expiresAt time.Time, stamp *uint64) bool {
	now := c.now()
	if !now.Before(expiresAt) {
		return false
	}

	s := c.shardFor(subject)
	k := key{kind: kind, subject: subject}

	s.mu.Lock()
	defer s.mu.Unlock()

	if stamp != nil && *stamp != s.stamp {
		return false
	}
	if e, ok := s.entries[k]; ok && !e.rec.Expired(now) && !e.rec.ExpiresAt.Before(expiresAt) {
		return false
	}

	s.storeLocked(k, &Record{Subject: subject, Token: token, Kind: kind, WrittenAt: now, ExpiresAt: expiresAt})
	return true
}

// Lookup returns the live record for (kind, subject).
func (c *Cache) Lookup(kind Kind, subject string) (*Record, bool) {
	now := c.now()
	s := c.shardFor(subject)
	k := key{kind: kind, subject: subject}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[k]
	if !ok {
		return nil, false
	}
	if e.rec.Expired(now) {
		s.removeLocked(e)
		return nil, false
	}
	return e.rec, true
}

// Get returns only the token string.
func (c *Cache) Get(kind Kind, subject string) (string, bool) {
	rec, ok := c.Lookup(kind, subject)
	if !ok {
		return "", false
	}
	return rec.Token, true
}

// Invalidate drops (kind, subject). Missing keys are ignored.
func (c *Cache) Invalidate(kind Kind, subject string) {
	s := c.shardFor(subject)
	k := key{kind: kind, subject: subject}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp++
	if e, ok := s.entries[k]; ok {
		s.removeLocked(e)
	}
}

// InvalidateSubject drops every kind held for subject.
func (c *Cache) InvalidateSubject(subject string) {
	c.Invalidate(KindAccess, subject)
	c.Invalidate(KindGuestRefresh, subject)
}

// Sweep removes expired records from every shard and returns how many went.
// Shards are locked one at a time.
func (c *Cache) Sweep() int {
	now := c.now()
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for _, e := range s.entries {
			if e.rec.Expired(now) {
				s.removeLocked(e)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len counts records, expired or not.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// storeLocked publishes rec under k as the newest write, evicting the
// oldest writes while the shard is over capacity.
func (s *shard) storeLocked(k key, rec *Record) {
	if e, ok := s.entries[k]; ok {
		e.rec = rec
		s.order.MoveToBack(e.elem)
		return
	}

	e := &entry{key: k, rec: rec}
	e.elem = s.order.PushBack(e)
	s.entries[k] = e

	for len(s.entries) > s.max {
		s.removeLocked(s.order.Front().Value.(*entry))
	}
}

func (s *shard) removeLocked(e *entry) {
	s.order.Remove(e.elem)
	delete(s.entries, e.key)
}
