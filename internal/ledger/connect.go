package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/pedro-hbl/ledger-lambdas/internal/metrics"
	"github.com/pedro-hbl/ledger-lambdas/internal/router"
	"github.com/pedro-hbl/ledger-lambdas/pkg/saltedge"
)

type connectRequest struct {
	CountryCode  string `json:"countryCode"`
	ProviderCode string `json:"providerCode"`
}

func (h *Handler) startConnection(ctx context.Context, req *router.Request) router.Response {
	var body connectRequest
	if trimmed := bytes.TrimSpace(req.Body); len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &body); err != nil {
			return router.Text(http.StatusBadRequest, "Invalid JSON body")
		}
	}

	if h.aggregator == nil {
		return router.JSON(http.StatusInternalServerError, map[string]string{"error": "aggregator is not configured"})
	}

	var connectURL string
	err := metrics.Measure(ctx, metrics.ExternalOperation, "StartConnection", func() error {
		var err error
		connectURL, err = h.aggregator.StartConnection(ctx, saltedge.ConnectRequest{
			Identifier:   req.UserID,
			CountryCode:  body.CountryCode,
			ProviderCode: body.ProviderCode,
		})
		return err
	})
	if err != nil {
		fields := []zap.Field{zap.String("userId", req.UserID), zap.Error(err)}
		var apiErr *saltedge.APIError
		if errors.As(err, &apiErr) {
			fields = append(fields, zap.Int("upstreamStatus", apiErr.Status), zap.String("upstreamClass", apiErr.Class))
		}
		h.log.Error("Failed to start connection", fields...)
		return router.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return router.JSON(http.StatusOK, map[string]string{"connectUrl": connectURL})
}
