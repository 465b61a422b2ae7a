package obs

import (
	"context"
	"sync"
)

// RequestInfo carries request attributes learned by inner handlers back out to
// the logging and metrics middleware, which only see the outer request.
type RequestInfo struct {
	mu       sync.Mutex
	route    string
	terminal string
	cashier  string
}

type requestInfoKey struct{}

// WithRequestInfo attaches a RequestInfo to ctx unless one is already present.
func WithRequestInfo(ctx context.Context) (context.Context, *RequestInfo) {
	if info := RequestInfoFrom(ctx); info != nil {
		return ctx, info
	}
	info := &RequestInfo{}
	return context.WithValue(ctx, requestInfoKey{}, info), info
}

// RequestInfoFrom returns the RequestInfo on ctx, or nil.
func RequestInfoFrom(ctx context.Context) *RequestInfo {
	if ctx == nil {
		return nil
	}
	info, _ := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return info
}

// WithRoutePattern records the matched route on the request info of ctx.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, info := WithRequestInfo(ctx)
	info.SetRoute(pattern)
	return ctx
}

// AnnotateIdentity records the terminal and cashier serving the request. It is
// a no-op when the request was not wrapped by RequestInfoMiddleware.
func AnnotateIdentity(ctx context.Context, terminal, cashier string) {
	info := RequestInfoFrom(ctx)
	if info == nil {
		return
	}
	info.mu.Lock()
	info.terminal, info.cashier = terminal, cashier
	info.mu.Unlock()
}

// SetRoute stores the route pattern.
func (i *RequestInfo) SetRoute(pattern string) {
	if i == nil {
		return
	}
	i.mu.Lock()
	i.route = pattern
	i.mu.Unlock()
}

// Route returns the recorded route pattern.
func (i *RequestInfo) Route() string {
	if i == nil {
		return ""
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.route
}

// Identity returns the recorded terminal and cashier.
func (i *RequestInfo) Identity() (terminal, cashier string) {
	if i == nil {
		return "", ""
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.terminal, i.cashier
}
