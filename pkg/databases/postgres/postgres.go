package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases/models"
	"github.com/pedro-hbl/ledger-lambdas/pkg/secrets"
)

const driverName = "pgx"

const (
	createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS pgcrypto`
	createTableSQL     = `CREATE TABLE IF NOT EXISTS rows (
	id uuid DEFAULT gen_random_uuid() PRIMARY KEY,
	data jsonb NOT NULL,
	created_at timestamptz DEFAULT now(),
	updated_at timestamptz DEFAULT now()
)`

	rowColumns = `id::text AS id, data, created_at, updated_at`

	listRowsSQL  = `SELECT ` + rowColumns + ` FROM rows ORDER BY created_at DESC LIMIT $1`
	createRowSQL = `INSERT INTO rows (data) VALUES ($1::jsonb) RETURNING ` + rowColumns
	updateRowSQL = `UPDATE rows SET data = $1::jsonb, updated_at = now() WHERE id = $2::uuid RETURNING ` + rowColumns
	deleteRowSQL = `DELETE FROM rows WHERE id = $1::uuid`
)

// PostgresConfig holds the connection settings of the rows database
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	// SecretID references the secret holding the username/password pair
	SecretID string
	SSLMode  string
}

// DSN builds a pgx connection string for the given credentials
func (c PostgresConfig) DSN(creds *secrets.Credentials) string {
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(creds.Username, creds.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}

// Connector opens one database connection per invocation
type Connector struct {
	cfg      PostgresConfig
	resolver secrets.CredentialResolver
	connect  func(ctx context.Context, driverName, dsn string) (*sqlx.DB, error)
}

// NewConnector creates a Connector resolving credentials through resolver
func NewConnector(cfg PostgresConfig, resolver secrets.CredentialResolver) *Connector {
	return &Connector{
		cfg:      cfg,
		resolver: resolver,
		connect:  sqlx.ConnectContext,
	}
}

// Open implements databases.RowStoreOpener
func (c *Connector) Open(ctx context.Context) (databases.RowStore, error) {
	creds, err := c.resolver.DatabaseCredentials(ctx, c.cfg.SecretID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database credentials: %w", err)
	}

	db, err := c.connect(ctx, driverName, c.cfg.DSN(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)

	return NewPostgresDatabase(db), nil
}

// PostgresDatabase implements databases.RowStore on a single sqlx handle
type PostgresDatabase struct {
	db *sqlx.DB
}

// NewPostgresDatabase wraps an open handle
func NewPostgresDatabase(db *sqlx.DB) *PostgresDatabase {
	return &PostgresDatabase{db: db}
}

// EnsureSchema implements databases.RowStore
func (p *PostgresDatabase) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createExtensionSQL); err != nil {
		return fmt.Errorf("failed to create extension: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create rows table: %w", err)
	}
	return nil
}

// ListRows implements databases.RowStore
func (p *PostgresDatabase) ListRows(ctx context.Context, limit int) ([]models.Row, error) {
	if limit <= 0 {
		limit = databases.DefaultRowLimit
	}

	rows := []models.Row{}
	if err := p.db.SelectContext(ctx, &rows, listRowsSQL, limit); err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}
	return rows, nil
}

// CreateRow implements databases.RowStore
func (p *PostgresDatabase) CreateRow(ctx context.Context, data models.JSON) (*models.Row, error) {
	var row models.Row
	if err := p.db.GetContext(ctx, &row, createRowSQL, data); err != nil {
		return nil, fmt.Errorf("failed to insert row: %w", err)
	}
	return &row, nil
}

// UpdateRow implements databases.RowStore
func (p *PostgresDatabase) UpdateRow(ctx context.Context, id string, data models.JSON) (*models.Row, error) {
	var row models.Row
	if err := p.db.GetContext(ctx, &row, updateRowSQL, data, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, databases.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update row %s: %w", id, err)
	}
	return &row, nil
}

// DeleteRow implements databases.RowStore
func (p *PostgresDatabase) DeleteRow(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, deleteRowSQL, id)
	if err != nil {
		return fmt.Errorf("failed to delete row %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return databases.ErrNotFound
	}
	return nil
}

// RunQuery implements databases.RowStore.
// json and jsonb columns are kept as raw JSON; other byte values become strings.
func (p *PostgresDatabase) RunQuery(ctx context.Context, text string, params []interface{}) ([]map[string]interface{}, error) {
	rows, err := p.db.QueryxContext(ctx, text, params...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}
	jsonColumns := make(map[string]bool, len(columnTypes))
	for _, ct := range columnTypes {
		switch strings.ToUpper(ct.DatabaseTypeName()) {
		case "JSON", "JSONB":
			jsonColumns[ct.Name()] = true
		}
	}

	results := make([]map[string]interface{}, 0)
	for rows.Next() {
		record := make(map[string]interface{})
		if err := rows.MapScan(record); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for column, value := range record {
			b, ok := value.([]byte)
			if !ok {
				continue
			}
			if jsonColumns[column] {
				record[column] = json.RawMessage(b)
			} else {
				record[column] = string(b)
			}
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return results, nil
}

// Close implements databases.RowStore
func (p *PostgresDatabase) Close() error {
	return p.db.Close()
}
