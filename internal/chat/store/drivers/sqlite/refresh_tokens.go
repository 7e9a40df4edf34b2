package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/barchat/internal/chat/domain"
)

type refreshTokensRepo struct {
	q   querier
	now func() time.Time
}

const refreshColumns = `id, user_id, token_hash, session_id, expires_at, revoked, created_at, updated_at`

func scanRefreshToken(row rowScanner) (domain.RefreshToken, error) {
	var (
		t                         domain.RefreshToken
		expires, created, updated int64
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.SessionID, &expires, &t.Revoked, &created, &updated); err != nil {
		return domain.RefreshToken{}, err
	}
	t.ExpiresAt = fromMillis(expires)
	t.CreatedAt = fromMillis(created)
	t.UpdatedAt = fromMillis(updated)
	return t, nil
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	now := orNow(t.CreatedAt, r.now)
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO refresh_tokens (`+refreshColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, t.SessionID, toMillis(t.ExpiresAt), t.Revoked, toMillis(now), toMillis(now),
	)
	return mapConstraint(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	t, err := scanRefreshToken(r.q.QueryRowContext(ctx,
		`SELECT `+refreshColumns+` FROM refresh_tokens WHERE token_hash = ?`, hash))
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	return t, nil
}

func (r *refreshTokensRepo) GetSession(ctx context.Context, userID, sid string) (domain.RefreshToken, error) {
	t, err := scanRefreshToken(r.q.QueryRowContext(ctx,
		`SELECT `+refreshColumns+` FROM refresh_tokens WHERE user_id = ? AND session_id = ?
		 ORDER BY created_at DESC LIMIT 1`, userID, sid))
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	return t, nil
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, hash string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, updated_at = ? WHERE token_hash = ?`,
		toMillis(r.now()), hash)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *refreshTokensRepo) RevokeAllUserRefreshTokens(ctx context.Context, userID string) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, updated_at = ? WHERE user_id = ? AND revoked = 0`,
		toMillis(r.now()), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time, limit int) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE id IN (
			SELECT id FROM refresh_tokens WHERE expires_at < ? OR revoked = 1 LIMIT ?
		)`, toMillis(now), limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
