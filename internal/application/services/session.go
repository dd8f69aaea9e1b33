package services

import "context"

// SearchSession attributes analytics records to a visitor
type SearchSession struct {
	SessionID string
	UserID    *string
}

type sessionKey struct{}

// WithSearchSession returns a context carrying s
func WithSearchSession(ctx context.Context, s SearchSession) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SearchSessionFromContext returns the session stored by WithSearchSession
func SearchSessionFromContext(ctx context.Context) (SearchSession, bool) {
	s, ok := ctx.Value(sessionKey{}).(SearchSession)
	return s, ok
}
