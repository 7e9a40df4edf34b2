package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aussiebroadwan/barchat/internal/chat/domain"
)

type messagesRepo struct {
	q   querier
	now func() time.Time
}

func (r *messagesRepo) PersistMessage(ctx context.Context, m domain.Message) error {
	atts := m.Attachments
	if atts == nil {
		atts = []domain.Attachment{}
	}
	raw, err := json.Marshal(atts)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO messages (id, room_id, sender_id, body, attachments, temp_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.RoomID, m.SenderID, m.Body, string(raw), m.TempID, toMillis(orNow(m.CreatedAt, r.now)))
	return mapConstraint(err)
}

func (r *messagesRepo) ListMessages(ctx context.Context, roomID, before string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, room_id, sender_id, body, attachments, temp_id, created_at
	            FROM messages WHERE room_id = ?`
	args := []any{roomID}
	if before != "" {
		query += ` AND id < ?`
		args = append(args, before)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			m       domain.Message
			raw     string
			created int64
		)
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Body, &raw, &m.TempID, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &m.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments of %s: %w", m.ID, err)
		}
		if len(m.Attachments) == 0 {
			m.Attachments = nil
		}
		m.CreatedAt = fromMillis(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *messagesRepo) IncrementUnread(ctx context.Context, userID, roomID string) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO unread_counters (user_id, room_id, count, updated_at) VALUES (?, ?, 1, ?)
		 ON CONFLICT (user_id, room_id) DO UPDATE SET count = count + 1, updated_at = excluded.updated_at`,
		userID, roomID, toMillis(r.now()))
	return err
}

func (r *messagesRepo) ResetUnread(ctx context.Context, userID, roomID string) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE unread_counters SET count = 0, updated_at = ? WHERE user_id = ? AND room_id = ?`,
		toMillis(r.now()), userID, roomID)
	return err
}

func (r *messagesRepo) UnreadCounts(ctx context.Context, userID string) (map[string]int64, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT room_id, count FROM unread_counters WHERE user_id = ? AND count > 0`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			room  string
			count int64
		)
		if err := rows.Scan(&room, &count); err != nil {
			return nil, err
		}
		out[room] = count
	}
	return out, rows.Err()
}
