package auth

import "context"

// SessionCookie names the cookie that carries the session token.
const SessionCookie = "quiz_session"

type contextKey struct{}

// Principal is the authenticated identity of the current request.
type Principal struct {
	AccountID   int64
	Email       string
	DisplayName string
	Authorities []string
	SessionID   int64
}

// HasAuthority reports whether p was granted authority a.
func (p Principal) HasAuthority(a string) bool {
	for _, got := range p.Authorities {
		if got == a {
			return true
		}
	}
	return false
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

func AccountID(ctx context.Context) int64 {
	p, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return p.AccountID
}
