package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/barchat/internal/chat/store"
)

type txStore struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op, the outer Store owns the database handle.
func (t *txStore) Close() error               { return nil }
func (t *txStore) Ping(context.Context) error { return nil }
func (t *txStore) ApplyMigrations() error     { return nil }

// Nested transactions are not supported.
func (t *txStore) Tx(context.Context) (store.Tx, error) { return nil, sql.ErrTxDone }

func (t *txStore) WithTx(context.Context, func(store.Tx) error) error { return sql.ErrTxDone }

func (t *txStore) Users() store.Users                 { return &usersRepo{q: t.tx, now: t.now} }
func (t *txStore) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{q: t.tx, now: t.now} }
func (t *txStore) Rooms() store.Rooms                 { return &roomsRepo{q: t.tx, now: t.now} }
func (t *txStore) Messages() store.Messages           { return &messagesRepo{q: t.tx, now: t.now} }
