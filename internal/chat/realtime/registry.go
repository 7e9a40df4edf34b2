package realtime

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"
)

const registryShards = 64

// DeliveryStatus is the outcome of handing a payload to one user.
type DeliveryStatus uint8

const (
	// Delivered means at least one of the user's connections queued it.
	Delivered DeliveryStatus = iota + 1
	// NotConnected means the user has no live connection.
	NotConnected
	// Dropped means every connection refused it, typically because it is
	// being closed for falling behind.
	Dropped
)

func (s DeliveryStatus) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case NotConnected:
		return "not_connected"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// DeliveryOutcome is one recipient's result of a Send or Broadcast.
type DeliveryOutcome struct {
	UserID      string
	Status      DeliveryStatus
	Connections int // how many connections accepted the payload
	Err         error
}

// TransitionFunc observes a user going online (first connection) or
// offline (last connection). It runs under the user's shard lock, so calls
// for one user never overlap or reorder. It must not block or call back
// into the registry.
type TransitionFunc func(userID string, online bool, at time.Time)

type registryShard struct {
	mu    sync.RWMutex
	users map[string]map[string]*Conn // user -> conn id -> conn
}

// Registry maps users to their live connections. Users are spread over
// independently locked shards so unrelated users never contend.
type Registry struct {
	shards       [registryShards]*registryShard
	onTransition TransitionFunc
}

func NewRegistry(onTransition TransitionFunc) *Registry {
	r := &Registry{onTransition: onTransition}
	for i := range r.shards {
		r.shards[i] = &registryShard{users: make(map[string]map[string]*Conn)}
	}
	return r
}

func (r *Registry) shardFor(userID string) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return r.shards[h.Sum32()%registryShards]
}

// Register adds c and reports whether it is the user's first connection.
func (r *Registry) Register(c *Conn) bool {
	s := r.shardFor(c.UserID)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[c.UserID]
	if !ok {
		conns = make(map[string]*Conn, 1)
		s.users[c.UserID] = conns
	}
	conns[c.ID] = c

	first := len(conns) == 1
	if first && r.onTransition != nil {
		r.onTransition(c.UserID, true, time.Now())
	}
	return first
}

// Unregister removes c and reports whether it was the user's last
// connection. Unknown connections are ignored.
func (r *Registry) Unregister(c *Conn) bool {
	s := r.shardFor(c.UserID)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[c.UserID]
	if !ok {
		return false
	}
	if _, ok := conns[c.ID]; !ok {
		return false
	}
	delete(conns, c.ID)

	if len(conns) > 0 {
		return false
	}
	delete(s.users, c.UserID)
	if r.onTransition != nil {
		r.onTransition(c.UserID, false, time.Now())
	}
	return true
}

// IsOnline reports whether userID has any live connection.
func (r *Registry) IsOnline(userID string) bool {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID]) > 0
}

// Connections snapshots the user's connections.
func (r *Registry) Connections(userID string) []*Conn {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	conns := s.users[userID]
	out := make([]*Conn, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// Count returns the number of online users and live connections.
func (r *Registry) Count() (users, conns int) {
	for _, s := range r.shards {
		s.mu.RLock()
		users += len(s.users)
		for _, cs := range s.users {
			conns += len(cs)
		}
		s.mu.RUnlock()
	}
	return users, conns
}

// Send queues payload on every connection of userID.
func (r *Registry) Send(userID string, payload []byte) DeliveryOutcome {
	return r.deliver(userID, payload, nil)
}

// Broadcast sends payload to each user, skipping the connection skip (the
// sender's own socket) when non-nil. A failing recipient never affects the
// others, and nothing blocks on a slow one.
func (r *Registry) Broadcast(userIDs []string, payload []byte, skip *Conn) []DeliveryOutcome {
	out := make([]DeliveryOutcome, 0, len(userIDs))
	for _, id := range userIDs {
		out = append(out, r.deliver(id, payload, skip))
	}
	return out
}

func (r *Registry) deliver(userID string, payload []byte, skip *Conn) DeliveryOutcome {
	res := DeliveryOutcome{UserID: userID, Status: NotConnected}

	var errs []error
	for _, c := range r.Connections(userID) {
		if c == skip {
			continue
		}
		if err := c.Enqueue(payload); err != nil {
			errs = append(errs, err)
			continue
		}
		res.Connections++
	}

	switch {
	case res.Connections > 0:
		res.Status = Delivered
	case len(errs) > 0:
		res.Status = Dropped
	}
	res.Err = errors.Join(errs...)
	return res
}

// DisconnectSession closes the connections of one session of userID, or
// all of the user's connections when sessionID is empty. A notice goes
// ahead of the close frame when the queue has room; code is what the peer
// sees either way.
func (r *Registry) DisconnectSession(userID, sessionID string, code int, reason string) int {
	frame, _ := noticeFrame(CodeNotice, reason)
	n := 0
	for _, c := range r.Connections(userID) {
		if sessionID != "" && c.SessionID != sessionID {
			continue
		}
		if frame != nil {
			c.offer(frame)
		}
		c.Close(code, reason)
		n++
	}
	return n
}

// CloseAll closes every connection. Used on shutdown.
func (r *Registry) CloseAll(code int, reason string) int {
	var all []*Conn
	for _, s := range r.shards {
		s.mu.RLock()
		for _, cs := range s.users {
			for _, c := range cs {
				all = append(all, c)
			}
		}
		s.mu.RUnlock()
	}

	frame, _ := noticeFrame(CodeNotice, reason)
	for _, c := range all {
		if frame != nil {
			c.offer(frame)
		}
		c.Close(code, reason)
	}
	return len(all)
}
