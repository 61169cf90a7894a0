package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/sotradis/voice-agent/pkg/retry"
)

// Result holds the outcome of one statement: rows for reads, an affected-row
// count for writes.
type Result struct {
	Columns      []string
	Rows         []map[string]interface{}
	RowsAffected int64
}

// conn is the slice of *sql.DB the client uses; tests substitute it.
type conn interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	PingContext(ctx context.Context) error
	Close() error
}

// Client wraps a shared pooled MySQL handle. The pool is created lazily on
// first use and discarded whenever a transient failure or an out-of-band pool
// error invalidates it; the next call recreates it.
type Client struct {
	dsn      string
	logger   *zap.Logger
	retryCfg retry.Config

	mu      sync.Mutex
	db      conn
	connect func() (conn, error)
}

// NewClient creates a client for the given MySQL DSN. No connection is opened
// until the first Execute.
func NewClient(dsn string, logger *zap.Logger) *Client {
	c := &Client{
		dsn:      dsn,
		logger:   logger,
		retryCfg: retry.DefaultConfig(),
	}
	c.connect = c.openPool
	return c
}

func (c *Client) openPool() (conn, error) {
	db, err := sql.Open("mysql", c.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(30 * time.Second)
	return db, nil
}

func (c *Client) handle() (conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return c.db, nil
	}
	db, err := c.connect()
	if err != nil {
		return nil, err
	}
	c.db = db
	c.logger.Info("database pool created", zap.String("dsn", MaskDSN(c.dsn)))
	return db, nil
}

// Invalidate discards the shared pool handle so the next call recreates it.
// Called on transient failures and on out-of-band pool errors.
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		_ = c.db.Close()
		c.db = nil
	}
}

// Execute runs one statement. Named @placeholders in the query text are bound
// positionally in the order they appear. Transient failures are retried with
// exponential backoff, recreating the pool between attempts; fatal failures
// surface immediately.
func (c *Client) Execute(ctx context.Context, query string, params ...interface{}) (*Result, error) {
	bound, args := BindNamed(query, params)

	cfg := c.retryCfg
	cfg.Retryable = IsTransient
	cfg.BeforeRetry = func(attempt int, err error) {
		c.logger.Warn("transient database failure, resetting pool",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		c.Invalidate()
	}

	var res *Result
	err := retry.Do(ctx, cfg, func() error {
		db, err := c.handle()
		if err != nil {
			return err
		}
		r, err := c.run(ctx, db, bound, args)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) run(ctx context.Context, db conn, query string, args []interface{}) (*Result, error) {
	if IsReadStatement(query) {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return collectRows(rows)
	}

	execRes, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	affected, err := execRes.RowsAffected()
	if err != nil {
		affected = 0
	}
	return &Result{RowsAffected: affected}, nil
}

func collectRows(rows *sql.Rows) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: cols}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		res.Rows = append(res.Rows, row)
	}
	return res, rows.Err()
}

// Ping verifies the pool; a failed probe invalidates the handle so the next
// Execute starts clean.
func (c *Client) Ping(ctx context.Context) error {
	db, err := c.handle()
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		c.Invalidate()
		return err
	}
	return nil
}

// Close releases the shared pool.
func (c *Client) Close() {
	c.Invalidate()
}

// IsReadStatement classifies a statement by its first token.
func IsReadStatement(query string) bool {
	fields := strings.Fields(strings.TrimSpace(query))
	if len(fields) == 0 {
		return true
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "SHOW", "DESCRIBE", "EXPLAIN", "WITH":
		return true
	}
	return false
}

// MaskDSN hides credentials in a user:pass@tcp(host)/db DSN for logging.
func MaskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	return "***:***" + dsn[at:]
}
