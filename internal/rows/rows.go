package rows

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/pedro-hbl/ledger-lambdas/internal/metrics"
	"github.com/pedro-hbl/ledger-lambdas/internal/router"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases/models"
)

// Options is the legacy router variant both rows functions use
func Options() router.Options {
	return router.Options{
		UnmatchedStatus: http.StatusBadRequest,
		UnmatchedBody:   "Unsupported route",
	}
}

// Handler serves the rows CRUD and query endpoints
type Handler struct {
	opener databases.RowStoreOpener
	log    *zap.Logger
}

// NewHandler creates a handler opening one store per request
func NewHandler(opener databases.RowStoreOpener, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{opener: opener, log: log}
}

// RegisterCRUD adds the /rows routes
func (h *Handler) RegisterCRUD(r *router.Router) {
	r.Handle(http.MethodGet, `/rows/?$`, h.listRows)
	r.Handle(http.MethodPost, `/rows/?$`, h.createRow)
	r.Handle(http.MethodPatch, `/rows/([0-9a-fA-F-]{36})$`, h.updateRow)
	r.Handle(http.MethodDelete, `/rows/([0-9a-fA-F-]{36})$`, h.deleteRow)
}

// RegisterQuery adds the /query route
func (h *Handler) RegisterQuery(r *router.Router) {
	r.Handle(http.MethodPost, `/query/?$`, h.runQuery)
}

// withStore opens a store, optionally bootstraps the schema, runs fn and always closes the store
func (h *Handler) withStore(ctx context.Context, failMessage string, bootstrap bool, fn func(store databases.RowStore) router.Response) router.Response {
	var store databases.RowStore
	err := metrics.Measure(ctx, metrics.ConnectOperation, "Open", func() error {
		var err error
		store, err = h.opener.Open(ctx)
		return err
	})
	if err != nil {
		h.log.Error("Failed to open row store", zap.Error(err))
		return router.ServerError(failMessage, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			h.log.Warn("Failed to close row store", zap.Error(err))
		}
	}()

	if bootstrap {
		err := metrics.Measure(ctx, metrics.WriteOperation, "EnsureSchema", func() error {
			return store.EnsureSchema(ctx)
		})
		if err != nil {
			h.log.Error("Failed to bootstrap schema", zap.Error(err))
			return router.ServerError(failMessage, err)
		}
	}

	return fn(store)
}

func (h *Handler) listRows(ctx context.Context, _ *router.Request) router.Response {
	return h.withStore(ctx, "Server error", true, func(store databases.RowStore) router.Response {
		var rows []models.Row
		err := metrics.Measure(ctx, metrics.ReadOperation, "ListRows", func() error {
			var err error
			rows, err = store.ListRows(ctx, databases.DefaultRowLimit)
			return err
		})
		if err != nil {
			h.log.Error("Failed to list rows", zap.Error(err))
			return router.ServerError("Server error", err)
		}
		return router.JSON(http.StatusOK, rows)
	})
}

func (h *Handler) createRow(ctx context.Context, req *router.Request) router.Response {
	data, ok := payload(req.Body)
	if !ok {
		return router.Text(http.StatusBadRequest, "Invalid JSON body")
	}

	return h.withStore(ctx, "Server error", true, func(store databases.RowStore) router.Response {
		var row *models.Row
		err := metrics.Measure(ctx, metrics.WriteOperation, "CreateRow", func() error {
			var err error
			row, err = store.CreateRow(ctx, data)
			return err
		})
		if err != nil {
			h.log.Error("Failed to create row", zap.Error(err))
			return router.ServerError("Server error", err)
		}
		return router.JSON(http.StatusCreated, row)
	})
}

func (h *Handler) updateRow(ctx context.Context, req *router.Request) router.Response {
	id := req.Param(0)
	data, ok := payload(req.Body)
	if !ok {
		return router.Text(http.StatusBadRequest, "Invalid JSON body")
	}

	return h.withStore(ctx, "Server error", true, func(store databases.RowStore) router.Response {
		var row *models.Row
		err := metrics.Measure(ctx, metrics.WriteOperation, "UpdateRow", func() error {
			var err error
			row, err = store.UpdateRow(ctx, id, data)
			return err
		})
		if errors.Is(err, databases.ErrNotFound) {
			return router.Text(http.StatusNotFound, "Not found")
		}
		if err != nil {
			h.log.Error("Failed to update row", zap.String("id", id), zap.Error(err))
			return router.ServerError("Server error", err)
		}
		return router.JSON(http.StatusOK, row)
	})
}

func (h *Handler) deleteRow(ctx context.Context, req *router.Request) router.Response {
	id := req.Param(0)

	return h.withStore(ctx, "Server error", true, func(store databases.RowStore) router.Response {
		err := metrics.Measure(ctx, metrics.WriteOperation, "DeleteRow", func() error {
			return store.DeleteRow(ctx, id)
		})
		if errors.Is(err, databases.ErrNotFound) {
			return router.Text(http.StatusNotFound, "Not found")
		}
		if err != nil {
			h.log.Error("Failed to delete row", zap.String("id", id), zap.Error(err))
			return router.ServerError("Server error", err)
		}
		return router.Empty(http.StatusNoContent)
	})
}

// payload returns the request body as the row data, {} when absent
func payload(body []byte) (models.JSON, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return models.JSON("{}"), true
	}
	if !json.Valid(trimmed) {
		return nil, false
	}
	return models.JSON(trimmed), true
}
