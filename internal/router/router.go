package router

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pedro-hbl/ledger-lambdas/internal/metrics"
)

// Request is the platform-neutral view of an inbound HTTP event
type Request struct {
	Method  string
	Path    string
	Body    []byte
	Headers map[string]string
	Query   map[string]string
	// UserID is the authorizer subject claim, empty when absent
	UserID string
	// Params holds the capture groups of the matched route pattern
	Params []string
}

// Header returns the named header, ignoring case
func (r *Request) Header(name string) string {
	if v, ok := r.Headers[name]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Param returns the i-th capture of the matched route, or ""
func (r *Request) Param(i int) string {
	if i < 0 || i >= len(r.Params) {
		return ""
	}
	return r.Params[i]
}

// Response is a status code, headers and a body ready for the platform
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// HandlerFunc handles a matched request
type HandlerFunc func(ctx context.Context, req *Request) Response

// Options selects the router variant
type Options struct {
	// CORS answers OPTIONS preflights and decorates every response
	CORS bool
	// RequireUser rejects requests without a user claim unless the route is public
	RequireUser bool
	// UnmatchedStatus and UnmatchedBody answer requests no route matches
	UnmatchedStatus int
	UnmatchedBody   string

	// Collector, when set, records the invocation; Sink receives it afterwards
	Collector *metrics.Collector
	Sink      metrics.Sink
	ColdStart bool
}

type route struct {
	method  string
	pattern *regexp.Regexp
	public  bool
	handler HandlerFunc
}

// Router dispatches requests through an ordered (method, pattern) table
type Router struct {
	routes []route
	opts   Options
	log    *zap.Logger
}

// New creates an empty router
func New(opts Options, log *zap.Logger) *Router {
	if opts.UnmatchedStatus == 0 {
		opts.UnmatchedStatus = http.StatusNotFound
		opts.UnmatchedBody = "Not found"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{opts: opts, log: log}
}

// Handle registers a route that requires a user when the router does
func (r *Router) Handle(method, pattern string, h HandlerFunc) {
	r.add(method, pattern, false, h)
}

// HandlePublic registers a route that never requires a user claim
func (r *Router) HandlePublic(method, pattern string, h HandlerFunc) {
	r.add(method, pattern, true, h)
}

func (r *Router) add(method, pattern string, public bool, h HandlerFunc) {
	r.routes = append(r.routes, route{
		method:  strings.ToUpper(method),
		pattern: regexp.MustCompile(pattern),
		public:  public,
		handler: h,
	})
}

// Serve produces exactly one response for req
func (r *Router) Serve(ctx context.Context, req *Request) Response {
	if c := r.opts.Collector; c != nil {
		c.Start(req.Method, req.Path, r.opts.ColdStart)
		ctx = metrics.WithCollector(ctx, c)
	}

	resp := r.dispatch(ctx, req)
	if r.opts.CORS {
		resp = withCORS(resp)
	}

	r.finish(ctx, req, resp)
	return resp
}

// Reject answers a request that could not be adapted, such as an undecodable body.
// The response is CORS-decorated like any served one.
func (r *Router) Reject(status int, message string, err error) Response {
	r.log.Warn("Rejected request", zap.Int("status", status), zap.Error(err))
	resp := Text(status, message)
	if r.opts.CORS {
		resp = withCORS(resp)
	}
	return resp
}

func (r *Router) dispatch(ctx context.Context, req *Request) (resp Response) {
	// Preflight is answered before any auth check
	if r.opts.CORS && req.Method == http.MethodOptions {
		return Empty(http.StatusNoContent)
	}

	rt, params := r.match(req.Method, req.Path)

	if r.opts.RequireUser && req.UserID == "" && (rt == nil || !rt.public) {
		return Text(http.StatusUnauthorized, "Unauthorized")
	}
	if rt == nil {
		return Text(r.opts.UnmatchedStatus, r.opts.UnmatchedBody)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic: %v", rec)
			r.log.Error("Handler panicked",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Error(err),
				zap.Stack("stack"))
			resp = ServerError("Server error", err)
		}
	}()

	req.Params = params
	return rt.handler(ctx, req)
}

func (r *Router) match(method, path string) (*route, []string) {
	method = strings.ToUpper(method)
	for i := range r.routes {
		rt := &r.routes[i]
		if rt.method != method {
			continue
		}
		if m := rt.pattern.FindStringSubmatch(path); m != nil {
			return rt, m[1:]
		}
	}
	return nil, nil
}

func (r *Router) finish(ctx context.Context, req *Request, resp Response) {
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
	}

	c := r.opts.Collector
	if c == nil {
		r.log.Info("Handled request", fields...)
		return
	}

	inv := c.End(resp.StatusCode)
	r.log.Info("Handled request", append(fields, zap.Any("metrics", inv.Summary))...)

	if r.opts.Sink != nil {
		if err := r.opts.Sink.Write(ctx, inv); err != nil {
			r.log.Warn("Failed to write invocation metrics", zap.Error(err))
		}
	}
}
