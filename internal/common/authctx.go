package common

import "context"

type ctxKey string

const (
	userIDKey     ctxKey = "auth/user-id"
	terminalIDKey ctxKey = "auth/terminal-id"
)

// WithUserID stores the authenticated cashier identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated cashier identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// WithTerminalID stores the register terminal the request was issued from.
func WithTerminalID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, terminalIDKey, id)
}

// TerminalID extracts the register terminal from the context if present.
func TerminalID(ctx context.Context) (string, bool) {
	v := ctx.Value(terminalIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
