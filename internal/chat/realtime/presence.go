package realtime

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/barchat/internal/chat/domain"
)

const DefaultPresenceWorkers = 8

// RoomDirectory is the membership source. It is read fresh for every
// fan-out, never cached.
type RoomDirectory interface {
	RoomsOf(ctx context.Context, userID string) ([]domain.Room, error)
	MembersOf(ctx context.Context, roomID string) ([]string, error)
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	GetRoom(ctx context.Context, id string) (domain.Room, error)
}

// presenceQueue is an unbounded FIFO. Publishing runs under a registry
// lock and must never wait on a worker.
type presenceQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []domain.PresenceEvent
	closed bool
}

func newPresenceQueue() *presenceQueue {
	q := &presenceQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *presenceQueue) push(ev domain.PresenceEvent) {
	q.mu.Lock()
	if !q.closed {
		q.events = append(q.events, ev)
		q.cond.Signal()
	}
	q.mu.Unlock()
}

// pop blocks for the next event. ok is false once the queue is closed and
// drained.
func (q *presenceQueue) pop() (ev domain.PresenceEvent, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.events) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.events) == 0 {
		return domain.PresenceEvent{}, false
	}
	ev = q.events[0]
	q.events[0] = domain.PresenceEvent{}
	q.events = q.events[1:]
	return ev, true
}

func (q *presenceQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Presence announces online/offline transitions to room-mates.
//
// Events are partitioned by user over a fixed set of workers, each
// draining its own FIFO, so one user's deltas are delivered in the order
// the registry produced them while different users proceed in parallel.
// Delivery is best effort: failures are logged and never retried.
type Presence struct {
	Rooms    RoomDirectory
	Registry *Registry
	Logger   *slog.Logger

	queues []*presenceQueue
	wg     sync.WaitGroup
}

func NewPresence(rooms RoomDirectory, logger *slog.Logger, workers int) *Presence {
	if workers <= 0 {
		workers = DefaultPresenceWorkers
	}
	p := &Presence{Rooms: rooms, Logger: logger, queues: make([]*presenceQueue, workers)}
	for i := range p.queues {
		p.queues[i] = newPresenceQueue()
	}
	return p
}

// Publish is a TransitionFunc.
func (p *Presence) Publish(userID string, online bool, at time.Time) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	q := p.queues[h.Sum32()%uint32(len(p.queues))]
	q.push(domain.PresenceEvent{UserID: userID, Online: online, LastSeenAt: at.UTC()})
}

// Start launches the workers. ctx bounds the store reads they make.
func (p *Presence) Start(ctx context.Context) {
	for _, q := range p.queues {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				ev, ok := q.pop()
				if !ok {
					return
				}
				p.announce(ctx, ev)
			}
		}()
	}
}

// Stop delivers what is already queued and waits for the workers.
func (p *Presence) Stop() {
	for _, q := range p.queues {
		q.close()
	}
	p.wg.Wait()
}

// Recipients is the set of online room-mates of userID, excluding userID.
func (p *Presence) Recipients(ctx context.Context, userID string) ([]string, error) {
	rooms, err := p.Rooms.RoomsOf(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{userID: {}}
	var out []string
	for _, room := range rooms {
		members, err := p.Rooms.MembersOf(ctx, room.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			if p.Registry.IsOnline(m) {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func (p *Presence) announce(ctx context.Context, ev domain.PresenceEvent) {
	l := p.Logger.With(slog.String("user_id", ev.UserID), slog.Bool("online", ev.Online))

	recipients, err := p.Recipients(ctx, ev.UserID)
	if err != nil {
		l.Warn("presence recipients lookup failed", slog.Any("error", err))
		return
	}
	if len(recipients) == 0 {
		return
	}

	frame, err := presenceFrame(ev)
	if err != nil {
		l.Error("encode presence", slog.Any("error", err))
		return
	}

	for _, out := range p.Registry.Broadcast(recipients, frame, nil) {
		if out.Status == Dropped {
			l.Warn("presence delivery failed", slog.String("recipient", out.UserID), slog.Any("error", out.Err))
		}
	}
}
