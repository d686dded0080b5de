package token

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// PGStore implements Store using PostgreSQL. Consume is a single
// conditional UPDATE so concurrent consumers racing on the same id
// produce exactly one winner.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Issue(ctx context.Context, recipient string, kind Kind, target Target, ttl time.Duration) (Token, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" || ttl <= 0 || !validKind(kind) || !validTarget(kind, target) {
		return Token{}, ErrInvalidInput
	}
	id, err := NewID()
	if err != nil {
		return Token{}, err
	}

	var tok Token
	err = s.db.QueryRowContext(ctx, `
		insert into capability_tokens(id, recipient, kind, target_type, target_id, used, created_at, expires_at)
		values ($1, $2, $3, $4, $5, false, now(), now() + $6 * interval '1 second')
		returning id, recipient, kind, target_type, target_id, used, created_at, expires_at
	`, id, recipient, string(kind), string(target.Type), target.ID, int64(ttl/time.Second)).Scan(
		&tok.ID, &tok.Recipient, &tok.Kind, &tok.TargetType, &tok.TargetID,
		&tok.Used, &tok.CreatedAt, &tok.ExpiresAt,
	)
	if err != nil {
		return Token{}, err
	}
	return tok, nil
}

func (s *PGStore) Consume(ctx context.Context, id string) (Token, error) {
	var tok Token
	err := s.db.QueryRowContext(ctx, `
		update capability_tokens
		set used = true
		where id = $1 and used = false and expires_at > now()
		returning id, recipient, kind, target_type, target_id, created_at, expires_at
	`, id).Scan(
		&tok.ID, &tok.Recipient, &tok.Kind, &tok.TargetType, &tok.TargetID,
		&tok.CreatedAt, &tok.ExpiresAt,
	)
	if err == nil {
		tok.Used = true
		return tok, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Token{}, err
	}
	// The conditional update matched nothing; classify why for the caller.
	return Token{}, s.classify(ctx, id)
}

func (s *PGStore) Peek(ctx context.Context, id string) (Token, error) {
	var (
		tok     Token
		expired bool
	)
	err := s.db.QueryRowContext(ctx, `
		select id, recipient, kind, target_type, target_id, used, created_at, expires_at,
		       expires_at <= now() as expired
		from capability_tokens where id = $1
	`, id).Scan(
		&tok.ID, &tok.Recipient, &tok.Kind, &tok.TargetType, &tok.TargetID,
		&tok.Used, &tok.CreatedAt, &tok.ExpiresAt, &expired,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, ErrNotFound
	}
	if err != nil {
		return Token{}, err
	}
	if tok.Used {
		return Token{}, ErrAlreadyUsed
	}
	if expired {
		return Token{}, ErrExpired
	}
	return tok, nil
}

func (s *PGStore) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `delete from capability_tokens where expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

// classify inspects the losing row to report a distinguishable error.
// Used wins over expired so double taps report a stable outcome.
func (s *PGStore) classify(ctx context.Context, id string) error {
	var (
		used    bool
		expired bool
	)
	err := s.db.QueryRowContext(ctx, `
		select used, expires_at <= now() from capability_tokens where id = $1
	`, id).Scan(&used, &expired)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if used {
		return ErrAlreadyUsed
	}
	if expired {
		return ErrExpired
	}
	// Unreachable: used never reverses and expiry only moves forward.
	// Report the conservative outcome if it ever happens.
	return ErrAlreadyUsed
}
