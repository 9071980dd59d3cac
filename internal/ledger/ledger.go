package ledger

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pedro-hbl/ledger-lambdas/internal/router"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases"
	"github.com/pedro-hbl/ledger-lambdas/pkg/saltedge"
)

// Aggregator starts bank connection sessions
type Aggregator interface {
	StartConnection(ctx context.Context, req saltedge.ConnectRequest) (string, error)
}

// WebhookCredentials is the optional Basic auth pair guarding the webhook routes
type WebhookCredentials struct {
	User     string
	Password string
}

// Options is the CORS-aware router variant of the ledger API
func Options() router.Options {
	return router.Options{
		CORS:            true,
		RequireUser:     true,
		UnmatchedStatus: http.StatusNotFound,
		UnmatchedBody:   "Not found",
	}
}

// Handler serves the ledger API
type Handler struct {
	store      databases.TransactionStore
	aggregator Aggregator
	webhook    WebhookCredentials
	log        *zap.Logger
	now        func() time.Time
	newID      func() string
}

// NewHandler creates a ledger handler
func NewHandler(store databases.TransactionStore, aggregator Aggregator, webhook WebhookCredentials, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		store:      store,
		aggregator: aggregator,
		webhook:    webhook,
		log:        log,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Register adds the ledger routes
func (h *Handler) Register(r *router.Router) {
	r.Handle(http.MethodGet, `/transactions$`, h.listTransactions)
	r.Handle(http.MethodPost, `/transactions$`, h.createTransaction)
	r.Handle(http.MethodPut, `/transactions$`, h.updateTransaction)
	r.Handle(http.MethodGet, `/budgets$`, h.getBudgets)
	r.Handle(http.MethodPut, `/budgets$`, h.putBudgets)
	r.Handle(http.MethodPost, `/connect/start$`, h.startConnection)
	r.HandlePublic(http.MethodPost, `/webhooks/saltedge$`,
		router.BasicAuth(h.webhook.User, h.webhook.Password, h.acknowledge("saltedge webhook")))
	r.HandlePublic(http.MethodPost, `/webhooks/saltedge/providers$`,
		router.BasicAuth(h.webhook.User, h.webhook.Password, h.acknowledge("saltedge providers webhook")))
}
