package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/barchat/internal/chat/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Drivers implement it and expose
// sub-repositories so that transactional work goes through Tx explicitly.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens
	Rooms() Rooms
	Messages() Messages

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller MUST Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// GetUsersByIDs returns whichever of ids exist, in no particular order.
	GetUsersByIDs(ctx context.Context, ids []string) ([]domain.User, error)

	// CreateUser fails with ErrAlreadyExists on a taken username.
	CreateUser(ctx context.Context, u domain.User) error
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// GetSession returns the refresh token backing session sid of userID.
	GetSession(ctx context.Context, userID, sid string) (domain.RefreshToken, error)

	RevokeRefreshToken(ctx context.Context, hash string) error
	RevokeAllUserRefreshTokens(ctx context.Context, userID string) (int64, error)

	// DeleteExpiredRefreshTokens removes up to limit tokens that expired
	// before now or were revoked, returning how many went.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time, limit int) (int64, error)
}

// Rooms is the membership source the router and presence fan-out read fresh
// on every operation.
type Rooms interface {
	CreateRoom(ctx context.Context, r domain.Room) error
	GetRoom(ctx context.Context, id string) (domain.Room, error)

	// AddMember fails with ErrAlreadyExists when already a member.
	AddMember(ctx context.Context, m domain.RoomMembership) error

	// RemoveMember fails with ErrNotFound when not a member.
	RemoveMember(ctx context.Context, roomID, userID string) error

	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	MembersOf(ctx context.Context, roomID string) ([]string, error)
	RoomsOf(ctx context.Context, userID string) ([]domain.Room, error)
}

type Messages interface {
	// PersistMessage stores m. The ID is chosen by the caller.
	PersistMessage(ctx context.Context, m domain.Message) error

	// ListMessages pages backwards from before (exclusive, empty = newest),
	// newest first.
	ListMessages(ctx context.Context, roomID, before string, limit int) ([]domain.Message, error)

	IncrementUnread(ctx context.Context, userID, roomID string) error
	ResetUnread(ctx context.Context, userID, roomID string) error
	UnreadCounts(ctx context.Context, userID string) (map[string]int64, error)
}
