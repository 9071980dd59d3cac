package rows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"go.uber.org/zap"

	"github.com/pedro-hbl/ledger-lambdas/internal/metrics"
	"github.com/pedro-hbl/ledger-lambdas/internal/router"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases"
)

// selectGuard only looks at the first token; it is not a SQL sanitizer.
// Multi-statement batches and unbounded SELECTs still pass.
var selectGuard = regexp.MustCompile(`(?i)^\s*select\s+`)

type queryRequest struct {
	Text   string            `json:"text"`
	Params []json.RawMessage `json:"params"`
}

func (h *Handler) runQuery(ctx context.Context, req *router.Request) router.Response {
	var body queryRequest
	if trimmed := bytes.TrimSpace(req.Body); len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &body); err != nil {
			return router.Text(http.StatusBadRequest, "Invalid JSON body")
		}
	}

	if body.Text == "" || !selectGuard.MatchString(body.Text) {
		return router.Text(http.StatusBadRequest, "Only SELECT queries are allowed")
	}

	params, err := decodeParams(body.Params)
	if err != nil {
		return router.Text(http.StatusBadRequest, "Invalid params")
	}

	return h.withStore(ctx, "Query error", false, func(store databases.RowStore) router.Response {
		var result []map[string]interface{}
		err := metrics.Measure(ctx, metrics.QueryOperation, "RunQuery", func() error {
			var err error
			result, err = store.RunQuery(ctx, body.Text, params)
			return err
		})
		if err != nil {
			h.log.Error("Query failed", zap.Error(err))
			return router.ServerError("Query error", err)
		}
		return router.JSON(http.StatusOK, result)
	})
}

// decodeParams turns JSON values into driver arguments.
// Integral numbers become int64, other numbers float64, objects and arrays their JSON text.
func decodeParams(raw []json.RawMessage) ([]interface{}, error) {
	params := make([]interface{}, 0, len(raw))
	for i, r := range raw {
		dec := json.NewDecoder(bytes.NewReader(r))
		dec.UseNumber()

		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("param %d: %w", i, err)
		}

		switch value := v.(type) {
		case json.Number:
			if n, err := value.Int64(); err == nil {
				params = append(params, n)
			} else if f, err := value.Float64(); err == nil {
				params = append(params, f)
			} else {
				return nil, fmt.Errorf("param %d: %w", i, err)
			}
		case map[string]interface{}, []interface{}:
			params = append(params, string(bytes.TrimSpace(r)))
		default:
			params = append(params, value)
		}
	}
	return params, nil
}
