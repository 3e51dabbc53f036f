package segment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pharmadesk/pharmadesk/internal/observability"
)

// CustomerRow is one normalized row of the customer aggregate. TotalValue and
// TotalOrders are zero for clients with no orders; LastPurchase stays null.
type CustomerRow struct {
	ClientID     int64      `json:"client_id"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email"`
	TotalOrders  int64      `json:"total_orders"`
	LastPurchase *time.Time `json:"last_purchase"`
	TotalValue   float64    `json:"total_value"`
}

// ExecutionError wraps a failed plan execution. Timeout marks a deadline hit
// rather than a database fault.
type ExecutionError struct {
	Timeout bool
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Timeout {
		return "segment query timed out: " + e.Err.Error()
	}
	return "segment query failed: " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

type ExecutorConfig struct {
	ExecTimeout  time.Duration
	RetryBackoff time.Duration
}

// Executor compiles plans and runs them read-only against the store with a
// bounded deadline and a single retry on transient failure.
type Executor struct {
	db      *sql.DB
	timeout time.Duration
	backoff time.Duration
	now     func() time.Time
}

func NewExecutor(db *sql.DB, cfg ExecutorConfig) *Executor {
	timeout := cfg.ExecTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &Executor{db: db, timeout: timeout, backoff: backoff, now: time.Now}
}

func (e *Executor) Run(ctx context.Context, plan QueryPlan) ([]CustomerRow, error) {
	query, args, err := Compile(plan, e.now())
	if err != nil {
		return nil, err
	}

	rows, err := e.runOnce(ctx, query, args)
	if err == nil {
		return rows, nil
	}

	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Timeout || ctx.Err() != nil {
		return nil, err
	}

	// One retry with backoff on a transient database failure. The inbound
	// request context still bounds the whole attempt.
	observability.IncrementSegmentRetry()
	select {
	case <-ctx.Done():
		return nil, &ExecutionError{Err: ctx.Err()}
	case <-time.After(e.backoff):
	}
	return e.runOnce(ctx, query, args)
}

func (e *Executor) runOnce(ctx context.Context, query string, args []any) ([]CustomerRow, error) {
	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := e.db.QueryContext(execCtx, query, args...)
	if err != nil {
		return nil, wrapExecErr(execCtx, err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]CustomerRow, 0)
	for rows.Next() {
		var row CustomerRow
		var totalOrders sql.NullInt64
		var lastPurchase sql.NullTime
		var totalValue sql.NullFloat64
		if err := rows.Scan(
			&row.ClientID,
			&row.FirstName,
			&row.LastName,
			&row.Email,
			&totalOrders,
			&lastPurchase,
			&totalValue,
		); err != nil {
			return nil, &ExecutionError{Err: fmt.Errorf("scan customer row: %w", err)}
		}
		row.TotalOrders = totalOrders.Int64
		row.TotalValue = totalValue.Float64
		if lastPurchase.Valid && totalOrders.Int64 > 0 {
			t := lastPurchase.Time
			row.LastPurchase = &t
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapExecErr(execCtx, err)
	}
	return results, nil
}

func wrapExecErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		observability.IncrementSegmentTimeout()
		return &ExecutionError{Timeout: true, Err: err}
	}
	return &ExecutionError{Err: fmt.Errorf("execute segment query: %w", err)}
}
