package router

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pedro-hbl/ledger-lambdas/internal/metrics"
)

func ok(body string) HandlerFunc {
	return func(context.Context, *Request) Response {
		return Text(http.StatusOK, body)
	}
}

func legacyRouter() *Router {
	r := New(Options{UnmatchedStatus: http.StatusBadRequest, UnmatchedBody: "Unsupported route"}, zap.NewNop())
	r.Handle(http.MethodGet, `/rows/?$`, ok("list"))
	r.Handle(http.MethodPatch, `/rows/([0-9a-fA-F-]{36})$`, func(_ context.Context, req *Request) Response {
		return Text(http.StatusOK, req.Param(0))
	})
	return r
}

func ledgerRouter() *Router {
	r := New(Options{CORS: true, RequireUser: true}, zap.NewNop())
	r.Handle(http.MethodGet, `/transactions$`, ok("tx"))
	r.HandlePublic(http.MethodPost, `/webhooks/saltedge$`, ok("hook"))
	r.HandlePublic(http.MethodPost, `/webhooks/saltedge/providers$`, ok("providers"))
	return r
}

func TestServe_Legacy(t *testing.T) {
	r := legacyRouter()
	id := "00000000-0000-0000-0000-000000000000"

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "list", method: "GET", path: "/prod/rows", wantStatus: 200, wantBody: "list"},
		{name: "trailing slash", method: "GET", path: "/rows/", wantStatus: 200, wantBody: "list"},
		{name: "capture", method: "PATCH", path: "/rows/" + id, wantStatus: 200, wantBody: id},
		{name: "short id", method: "PATCH", path: "/rows/1234", wantStatus: 400, wantBody: "Unsupported route"},
		{name: "wrong method", method: "PUT", path: "/rows", wantStatus: 400, wantBody: "Unsupported route"},
		{name: "no preflight", method: "OPTIONS", path: "/rows", wantStatus: 400, wantBody: "Unsupported route"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := r.Serve(context.Background(), &Request{Method: tt.method, Path: tt.path})
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantBody, resp.Body)
			assert.NotContains(t, resp.Headers, "Access-Control-Allow-Origin")
		})
	}
}

func TestServe_Ledger(t *testing.T) {
	r := ledgerRouter()

	tests := []struct {
		name       string
		req        Request
		wantStatus int
		wantBody   string
	}{
		{name: "preflight before auth", req: Request{Method: "OPTIONS", Path: "/v1/transactions"}, wantStatus: 204},
		{name: "missing user", req: Request{Method: "GET", Path: "/v1/transactions"}, wantStatus: 401, wantBody: "Unauthorized"},
		{name: "unmatched without user", req: Request{Method: "GET", Path: "/v1/nothing"}, wantStatus: 401, wantBody: "Unauthorized"},
		{name: "authorized", req: Request{Method: "GET", Path: "/v1/transactions", UserID: "u1"}, wantStatus: 200, wantBody: "tx"},
		{name: "unmatched", req: Request{Method: "DELETE", Path: "/v1/transactions", UserID: "u1"}, wantStatus: 404, wantBody: "Not found"},
		{name: "public webhook", req: Request{Method: "POST", Path: "/v1/webhooks/saltedge"}, wantStatus: 200, wantBody: "hook"},
		{name: "public providers webhook", req: Request{Method: "POST", Path: "/v1/webhooks/saltedge/providers"}, wantStatus: 200, wantBody: "providers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			resp := r.Serve(context.Background(), &req)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantBody, resp.Body)
			for k, v := range corsHeaders {
				assert.Equal(t, v, resp.Headers[k], k)
			}
		})
	}
}

func TestServe_RecoversPanic(t *testing.T) {
	r := New(Options{CORS: true}, zap.NewNop())
	r.Handle(http.MethodGet, `/boom$`, func(context.Context, *Request) Response {
		panic("kaboom")
	})

	resp := r.Serve(context.Background(), &Request{Method: "GET", Path: "/boom"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Server error","error":"panic: kaboom"}`, resp.Body)
	assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
}

type recordingSink struct {
	invocations []*metrics.Invocation
	err         error
}

func (s *recordingSink) Write(_ context.Context, inv *metrics.Invocation) error {
	s.invocations = append(s.invocations, inv)
	return s.err
}

func TestServe_RecordsMetrics(t *testing.T) {
	sink := &recordingSink{err: errors.New("ignored")}
	r := New(Options{Collector: metrics.NewCollector("test"), Sink: sink, ColdStart: true}, zap.NewNop())
	r.Handle(http.MethodGet, `/items$`, func(ctx context.Context, _ *Request) Response {
		_ = metrics.Measure(ctx, metrics.ReadOperation, "List", func() error { return nil })
		return Text(http.StatusOK, "ok")
	})

	resp := r.Serve(context.Background(), &Request{Method: "GET", Path: "/items"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, sink.invocations, 1)
	inv := sink.invocations[0]
	assert.Equal(t, "GET", inv.Method)
	assert.Equal(t, http.StatusOK, inv.StatusCode)
	assert.True(t, inv.ColdStart)
	assert.Len(t, inv.Operations, 1)
}

func TestBasicAuth(t *testing.T) {
	encode := func(s string) string { return "Basic " + base64.StdEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name       string
		user, pass string
		header     string
		wantStatus int
	}{
		{name: "disabled", wantStatus: 200},
		{name: "valid", user: "hook", pass: "pw", header: encode("hook:pw"), wantStatus: 200},
		{name: "colon in password", user: "hook", pass: "p:w", header: encode("hook:p:w"), wantStatus: 200},
		{name: "wrong password", user: "hook", pass: "pw", header: encode("hook:nope"), wantStatus: 401},
		{name: "missing header", user: "hook", pass: "pw", wantStatus: 401},
		{name: "bearer", user: "hook", pass: "pw", header: "Bearer abc", wantStatus: 401},
		{name: "bad base64", user: "hook", pass: "pw", header: "Basic !!!", wantStatus: 401},
		{name: "no separator", user: "hook", pass: "pw", header: encode("hookpw"), wantStatus: 401},
		{name: "only user configured", user: "hook", header: encode("hook:"), wantStatus: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := BasicAuth(tt.user, tt.pass, ok("ok"))
			req := &Request{Headers: map[string]string{}}
			if tt.header != "" {
				// header lookup is case-insensitive
				req.Headers["authorization"] = tt.header
			}
			resp := h(context.Background(), req)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus == 401 {
				assert.Equal(t, "Unauthorized", resp.Body)
			}
		})
	}
}

func TestResponses(t *testing.T) {
	resp := JSON(http.StatusCreated, map[string]interface{}{"ok": true})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	assert.JSONEq(t, `{"ok":true}`, resp.Body)

	resp = JSON(http.StatusOK, make(chan int))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp = ServerError("Query error", errors.New("relation \"nope\" does not exist"))
	assert.JSONEq(t, `{"message":"Query error","error":"relation \"nope\" does not exist"}`, resp.Body)

	resp = Empty(http.StatusNoContent)
	assert.Empty(t, resp.Body)
}

func TestReject(t *testing.T) {
	resp := New(Options{CORS: true, RequireUser: true}, zap.NewNop()).
		Reject(http.StatusBadRequest, "Invalid body encoding", errors.New("illegal base64 data"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid body encoding", resp.Body)
	assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])

	resp = legacyRouter().Reject(http.StatusBadRequest, "Invalid body encoding", nil)
	assert.Equal(t, "Invalid body encoding", resp.Body)
	assert.NotContains(t, resp.Headers, "Access-Control-Allow-Origin")
}
