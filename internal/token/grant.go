package token

import "context"

type ctxKey string

const grantKey ctxKey = "token_grant"

// Grant is the identity a consumed capability token vouches for.
// Handlers downstream of the guard trust it without further auth.
type Grant struct {
	Recipient  string
	TargetType TargetType
	TargetID   string
}

// ContextWithGrant attaches the consumed token's grant to the context.
func ContextWithGrant(ctx context.Context, g Grant) context.Context {
	return context.WithValue(ctx, grantKey, g)
}

// GrantFromContext returns the grant attached by the token guard.
func GrantFromContext(ctx context.Context) (Grant, bool) {
	g, ok := ctx.Value(grantKey).(Grant)
	return g, ok
}

// GrantOf derives the grant carried by a token record.
func GrantOf(t Token) Grant {
	return Grant{
		Recipient:  t.Recipient,
		TargetType: t.TargetType,
		TargetID:   t.TargetID,
	}
}
