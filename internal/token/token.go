package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// Kind discriminates what a capability token permits.
type Kind string

const (
	KindAuthorize Kind = "authorize"
	KindUpload    Kind = "upload"
)

// TargetType tags which record an upload token attaches to.
type TargetType string

const (
	TargetProperty TargetType = "property"
	TargetUnit     TargetType = "unit"
	TargetTenant   TargetType = "tenant"
)

var (
	ErrNotFound     = errors.New("token: not found")
	ErrExpired      = errors.New("token: expired")
	ErrAlreadyUsed  = errors.New("token: already used")
	ErrInvalidInput = errors.New("token: invalid input")
)

// Token is a one-time permission slip sent to a recipient over the chat
// channel. The identifier itself is the only authentication.
type Token struct {
	ID         string
	Recipient  string
	Kind       Kind
	TargetType TargetType
	TargetID   string
	Used       bool
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Target references the entity an upload attaches to. Zero value means no
// target (authorize tokens).
type Target struct {
	Type TargetType
	ID   string
}

// Store persists capability tokens with expiry and single-use semantics.
type Store interface {
	// Issue creates a token valid for ttl and returns the full record.
	Issue(ctx context.Context, recipient string, kind Kind, target Target, ttl time.Duration) (Token, error)
	// Consume atomically validates and marks the token used. Exactly one
	// of any set of concurrent Consume calls for the same id succeeds;
	// the rest observe ErrAlreadyUsed.
	Consume(ctx context.Context, id string) (Token, error)
	// Peek inspects a token without consuming it, reporting the same
	// error taxonomy as Consume.
	Peek(ctx context.Context, id string) (Token, error)
	// PurgeExpired removes expired records and reports how many were
	// deleted. Passive expiry checks in Consume/Peek remain the
	// correctness mechanism; this keeps the table small.
	PurgeExpired(ctx context.Context) (int, error)
}

// NewID returns a 128-bit random identifier, hex encoded.
func NewID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

func validKind(k Kind) bool {
	return k == KindAuthorize || k == KindUpload
}

func validTarget(k Kind, t Target) bool {
	if t == (Target{}) {
		return true
	}
	if k != KindUpload {
		return false
	}
	switch t.Type {
	case TargetProperty, TargetUnit, TargetTenant:
		return t.ID != ""
	}
	return false
}
