package ledger

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/pedro-hbl/ledger-lambdas/internal/router"
)

// acknowledge logs the notification and answers 200 ok; processing is not implemented yet
func (h *Handler) acknowledge(message string) router.HandlerFunc {
	return func(_ context.Context, req *router.Request) router.Response {
		body := zap.ByteString("body", req.Body)
		if json.Valid(req.Body) {
			body = zap.Any("body", json.RawMessage(req.Body))
		}
		h.log.Info(message, zap.String("path", req.Path), body)
		return router.Text(http.StatusOK, "ok")
	}
}
