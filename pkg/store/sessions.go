package store

import (
	"context"

	"github.com/google/uuid"
)

// CreateSession inserts a session row. Tokens are generated by the session
// manager.
func (s *Store) CreateSession(ctx context.Context, session *Session) (*Session, error) {
	var created Session
	err := s.db.GetContext(ctx, &created,
		`INSERT INTO session (id, token, refresh_token, account_id, updated_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING *`,
		uuid.New(), session.Token, session.RefreshToken, session.AccountID,
		session.UpdatedAt, session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// GetSessionByToken returns the session for a token or ErrNotFound.
func (s *Store) GetSessionByToken(ctx context.Context, token string) (*Session, error) {
	var session Session
	err := s.db.GetContext(ctx, &session,
		`SELECT * FROM session WHERE token = $1`, token)
	if err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

// DeleteSessionByToken removes a session row.
func (s *Store) DeleteSessionByToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE token = $1`, token)
	return err
}
