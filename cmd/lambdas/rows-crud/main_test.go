package main

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pedro-hbl/ledger-lambdas/internal/metrics"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases"
)

type recordingSink struct {
	invocations []*metrics.Invocation
}

func (s *recordingSink) Write(_ context.Context, inv *metrics.Invocation) error {
	s.invocations = append(s.invocations, inv)
	return nil
}

type failingOpener struct{ calls int }

func (o *failingOpener) Open(context.Context) (databases.RowStore, error) {
	o.calls++
	return nil, errors.New("connection refused")
}

func v2Event(method, path, body string) events.APIGatewayV2HTTPRequest {
	event := events.APIGatewayV2HTTPRequest{RawPath: path, Body: body}
	event.RequestContext.HTTP.Method = method
	return event
}

func TestHandleRequest_ColdStartOnlyOnce(t *testing.T) {
	sink := &recordingSink{}
	opener := &failingOpener{}
	a := &app{opener: opener, sink: sink, log: zap.NewNop(), coldStart: true}

	resp, err := a.handleRequest(context.Background(), v2Event(http.MethodGet, "/rows", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 1, opener.calls)

	resp, err = a.handleRequest(context.Background(), v2Event(http.MethodGet, "/elsewhere", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Unsupported route", resp.Body)

	require.Len(t, sink.invocations, 2)
	assert.True(t, sink.invocations[0].ColdStart)
	assert.False(t, sink.invocations[1].ColdStart)
	assert.Equal(t, functionName, sink.invocations[0].Function)
}

func TestHandleRequest_QueryRouteNotServed(t *testing.T) {
	a := &app{opener: &failingOpener{}, log: zap.NewNop()}

	resp, err := a.handleRequest(context.Background(), v2Event(http.MethodPost, "/query", `{"text":"select 1"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleRequest_BadBase64(t *testing.T) {
	a := &app{opener: &failingOpener{}, log: zap.NewNop()}

	event := v2Event(http.MethodPost, "/rows", "%%%")
	event.IsBase64Encoded = true

	resp, err := a.handleRequest(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid body encoding", resp.Body)
}
