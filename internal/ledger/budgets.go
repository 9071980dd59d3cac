package ledger

import (
	"context"
	"net/http"

	"github.com/pedro-hbl/ledger-lambdas/internal/router"
)

// Budgets are placeholders with no persistence behind them.

func (h *Handler) getBudgets(_ context.Context, _ *router.Request) router.Response {
	return router.JSON(http.StatusOK, map[string]interface{}{
		"month":      h.now().UTC().Format("2006-01"),
		"categories": []interface{}{},
	})
}

func (h *Handler) putBudgets(_ context.Context, _ *router.Request) router.Response {
	return router.JSON(http.StatusOK, map[string]bool{"ok": true})
}
