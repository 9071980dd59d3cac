package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pedro-hbl/ledger-lambdas/internal/metrics"
	"github.com/pedro-hbl/ledger-lambdas/internal/router"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases/models"
)

const (
	defaultCurrency = "ILS"
	defaultCategory = "Uncategorized"
	defaultSource   = "api"
)

var monthPattern = regexp.MustCompile(`^\d{4}(0[1-9]|1[0-2])$`)

// dateLayouts are tried in order when parsing a transaction date
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

type createTransactionRequest struct {
	AmountNis     *decimal.Decimal `json:"amountNis"`
	Currency      *string          `json:"currency"`
	Date          *string          `json:"date"`
	MerchantRaw   *string          `json:"merchantRaw"`
	MerchantClean *string          `json:"merchantClean"`
	Category      *string          `json:"category"`
	Institution   *string          `json:"institution"`
	AccountID     *string          `json:"accountId"`
	IsIncome      *bool            `json:"isIncome"`
	Source        *string          `json:"source"`
}

type updateTransactionRequest struct {
	SK            string  `json:"sk"`
	Category      *string `json:"category"`
	MerchantClean *string `json:"merchantClean"`
}

func (h *Handler) listTransactions(ctx context.Context, req *router.Request) router.Response {
	yyyymm := strings.Replace(req.Query["month"], "-", "", 1)
	if yyyymm != "" && !monthPattern.MatchString(yyyymm) {
		return router.Text(http.StatusBadRequest, "Invalid month")
	}

	var items []models.Transaction
	err := metrics.Measure(ctx, metrics.ReadOperation, "ListTransactions", func() error {
		var err error
		items, err = h.store.ListTransactions(ctx, req.UserID, yyyymm, databases.DefaultTransactionLimit)
		return err
	})
	if err != nil {
		h.log.Error("Failed to list transactions", zap.String("userId", req.UserID), zap.Error(err))
		return router.ServerError("Server error", err)
	}
	if items == nil {
		items = []models.Transaction{}
	}

	return router.JSON(http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) createTransaction(ctx context.Context, req *router.Request) router.Response {
	var body createTransactionRequest
	if err := decodeBody(req.Body, &body); err != nil {
		return router.Text(http.StatusBadRequest, "Invalid JSON body")
	}
	if body.AmountNis == nil {
		return router.Text(http.StatusBadRequest, "Missing amountNis")
	}

	at := h.now()
	if body.Date != nil && *body.Date != "" {
		parsed, ok := parseDate(*body.Date)
		if !ok {
			return router.Text(http.StatusBadRequest, "Invalid date")
		}
		at = parsed
	}

	tx := models.NewTransaction(req.UserID, h.newID(), at)
	tx.AmountNis = body.AmountNis.Round(2).InexactFloat64()
	tx.Currency = stringOr(body.Currency, defaultCurrency)
	tx.MerchantRaw = stringOr(body.MerchantRaw, "")
	tx.MerchantClean = stringOr(body.MerchantClean, tx.MerchantRaw)
	tx.Category = stringOr(body.Category, defaultCategory)
	tx.Institution = stringOr(body.Institution, "")
	tx.AccountID = stringOr(body.AccountID, "")
	tx.IsIncome = body.IsIncome != nil && *body.IsIncome
	tx.Source = stringOr(body.Source, defaultSource)

	err := metrics.Measure(ctx, metrics.WriteOperation, "PutTransaction", func() error {
		return h.store.PutTransaction(ctx, tx)
	})
	if err != nil {
		h.log.Error("Failed to create transaction", zap.String("userId", req.UserID), zap.Error(err))
		return router.ServerError("Server error", err)
	}

	return router.JSON(http.StatusCreated, map[string]interface{}{
		"ok": true,
		"id": tx.ID,
		"sk": tx.SK,
	})
}

func (h *Handler) updateTransaction(ctx context.Context, req *router.Request) router.Response {
	var body updateTransactionRequest
	if err := decodeBody(req.Body, &body); err != nil {
		return router.Text(http.StatusBadRequest, "Invalid JSON body")
	}
	if body.SK == "" {
		return router.Text(http.StatusBadRequest, "Missing sk")
	}

	// date is immutable so the gsi1 keys never need rewriting
	var updates []models.FieldUpdate
	if body.Category != nil {
		updates = append(updates, models.FieldUpdate{Name: "category", Value: *body.Category})
	}
	if body.MerchantClean != nil {
		updates = append(updates, models.FieldUpdate{Name: "merchantClean", Value: *body.MerchantClean})
	}
	if len(updates) == 0 {
		return router.Text(http.StatusBadRequest, "No updatable fields")
	}

	err := metrics.Measure(ctx, metrics.WriteOperation, "UpdateTransaction", func() error {
		return h.store.UpdateTransaction(ctx, req.UserID, body.SK, updates)
	})
	if errors.Is(err, databases.ErrNotFound) {
		return router.Text(http.StatusNotFound, "Not found")
	}
	if err != nil {
		h.log.Error("Failed to update transaction", zap.String("userId", req.UserID), zap.String("sk", body.SK), zap.Error(err))
		return router.ServerError("Server error", err)
	}

	return router.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func decodeBody(raw []byte, v interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	return json.Unmarshal(trimmed, v)
}

func parseDate(value string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func stringOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}
