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

	"github.com/pedro-hbl/ledger-lambdas/pkg/databases"
)

type unreachableOpener struct{ calls int }

func (o *unreachableOpener) Open(context.Context) (databases.RowStore, error) {
	o.calls++
	return nil, errors.New("no route to host")
}

func v2Event(method, path, body string) events.APIGatewayV2HTTPRequest {
	event := events.APIGatewayV2HTTPRequest{RawPath: path, Body: body}
	event.RequestContext.HTTP.Method = method
	return event
}

func TestHandleRequest(t *testing.T) {
	opener := &unreachableOpener{}
	a := &app{opener: opener, log: zap.NewNop(), coldStart: true}
	ctx := context.Background()

	resp, err := a.handleRequest(ctx, v2Event(http.MethodPost, "/query", `{"text":"drop table rows"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, opener.calls)

	resp, err = a.handleRequest(ctx, v2Event(http.MethodPost, "/query/", `{"text":"select 1"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, resp.Body, "Query error")
	assert.Equal(t, 1, opener.calls)

	resp, err = a.handleRequest(ctx, v2Event(http.MethodGet, "/rows", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Unsupported route", resp.Body)
	assert.False(t, a.coldStart)
}
