package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/barchat/internal/chat/domain"
	"github.com/aussiebroadwan/barchat/internal/chat/store"
)

type roomsRepo struct {
	q   querier
	now func() time.Time
}

func (r *roomsRepo) CreateRoom(ctx context.Context, room domain.Room) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO rooms (id, name, created_by, created_at) VALUES (?, ?, ?, ?)`,
		room.ID, room.Name, room.CreatedBy, toMillis(orNow(room.CreatedAt, r.now)))
	return mapConstraint(err)
}

func (r *roomsRepo) GetRoom(ctx context.Context, id string) (domain.Room, error) {
	var (
		room    domain.Room
		created int64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, created_by, created_at FROM rooms WHERE id = ?`, id,
	).Scan(&room.ID, &room.Name, &room.CreatedBy, &created)
	if err != nil {
		return domain.Room{}, mapNotFound(err)
	}
	room.CreatedAt = fromMillis(created)
	return room, nil
}

func (r *roomsRepo) AddMember(ctx context.Context, m domain.RoomMembership) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO room_members (room_id, user_id, joined_at) VALUES (?, ?, ?)`,
		m.RoomID, m.UserID, toMillis(orNow(m.JoinedAt, r.now)))
	return mapConstraint(err)
}

func (r *roomsRepo) RemoveMember(ctx context.Context, roomID, userID string) error {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id = ? AND user_id = ?`, roomID, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *roomsRepo) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var one int
	err := r.q.QueryRowContext(ctx,
		`SELECT 1 FROM room_members WHERE room_id = ? AND user_id = ?`, roomID, userID,
	).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (r *roomsRepo) MembersOf(ctx context.Context, roomID string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT user_id FROM room_members WHERE room_id = ? ORDER BY joined_at, user_id`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *roomsRepo) RoomsOf(ctx context.Context, userID string) ([]domain.Room, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT r.id, r.name, r.created_by, r.created_at
		   FROM rooms r JOIN room_members m ON m.room_id = r.id
		  WHERE m.user_id = ?
		  ORDER BY r.created_at, r.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Room
	for rows.Next() {
		var (
			room    domain.Room
			created int64
		)
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedBy, &created); err != nil {
			return nil, err
		}
		room.CreatedAt = fromMillis(created)
		out = append(out, room)
	}
	return out, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
