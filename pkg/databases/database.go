package databases

import (
	"context"
	"errors"

	"github.com/pedro-hbl/ledger-lambdas/pkg/databases/models"
)

// ErrNotFound is returned when an update or delete target does not exist
var ErrNotFound = errors.New("not found")

const (
	// DefaultRowLimit caps ListRows
	DefaultRowLimit = 500
	// DefaultTransactionLimit caps ListTransactions
	DefaultTransactionLimit = 200
)

// RowStore defines the operations of the relational rows adapter.
// A RowStore wraps a single connection and must be closed by its user.
type RowStore interface {
	// EnsureSchema creates the generated-id extension and the rows table if missing
	EnsureSchema(ctx context.Context) error

	ListRows(ctx context.Context, limit int) ([]models.Row, error)
	CreateRow(ctx context.Context, data models.JSON) (*models.Row, error)
	UpdateRow(ctx context.Context, id string, data models.JSON) (*models.Row, error)
	DeleteRow(ctx context.Context, id string) error

	// RunQuery executes a statement with positional parameters and returns every row as a column map
	RunQuery(ctx context.Context, text string, params []interface{}) ([]map[string]interface{}, error)

	Close() error
}

// RowStoreOpener opens a fresh RowStore for one invocation
type RowStoreOpener interface {
	Open(ctx context.Context) (RowStore, error)
}

// TransactionStore defines the operations of the key-value ledger adapter
type TransactionStore interface {
	// ListTransactions queries a user's transactions, by month bucket when yyyymm is not empty
	ListTransactions(ctx context.Context, userID, yyyymm string, limit int) ([]models.Transaction, error)

	// PutTransaction writes a new transaction item
	PutTransaction(ctx context.Context, tx *models.Transaction) error

	// UpdateTransaction applies a partial attribute update to an existing item
	UpdateTransaction(ctx context.Context, userID, sk string, updates []models.FieldUpdate) error
}
