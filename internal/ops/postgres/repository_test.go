package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/pharmadesk/pharmadesk/internal/ops"
)

func TestCreateClientWritesAuditInSameTx(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO client (first_name, last_name, email, mobile, day_phone)
VALUES ($1, $2, $3, $4, $5)
RETURNING client_id, created_at`)).
		WithArgs("Ada", "Okafor", "ada@example.com", "0700000001", "").
		WillReturnRows(sqlmock.NewRows([]string{"client_id", "created_at"}).AddRow(int64(7), now))
	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO audit_log (actor, action, entity, entity_id, details)
VALUES ($1, $2, $3, $4, $5::jsonb)`)).
		WithArgs("ops@pharmadesk.example", "create", "client", "7", `{"email":"ada@example.com"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	client, err := repo.CreateClient(context.Background(), ops.CreateClientInput{
		Actor:     "ops@pharmadesk.example",
		FirstName: "Ada",
		LastName:  "Okafor",
		Email:     "ada@example.com",
		Mobile:    "0700000001",
	})
	if err != nil {
		t.Fatalf("CreateClient() error = %v", err)
	}
	if client.ClientID != 7 {
		t.Fatalf("ClientID = %d", client.ClientID)
	}
	if !client.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v, want %v", client.CreatedAt, now)
	}
	assertSQLMock(t, mock)
}

func TestGetClientReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT client_id, first_name, last_name, email, mobile, day_phone, created_at
FROM client
WHERE client_id = $1`)).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetClient(context.Background(), 404)
	if !errors.Is(err, ops.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, ops.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestUpdateOrderStatusAuditsNewStatus(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`
UPDATE client_order
SET status = $2::pharmadesk_order_status, updated_at = NOW()
WHERE order_id = $1
RETURNING order_id, client_id, status, shipper_id, total_value, placed_at, updated_at`)).
		WithArgs(int64(12), "shipped").
		WillReturnRows(sqlmock.NewRows([]string{
			"order_id", "client_id", "status", "shipper_id", "total_value", "placed_at", "updated_at",
		}).AddRow(int64(12), int64(7), "shipped", int64(3), 149.50, now.Add(-time.Hour), now))
	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO audit_log (actor, action, entity, entity_id, details)
VALUES ($1, $2, $3, $4, $5::jsonb)`)).
		WithArgs("ops@pharmadesk.example", "update_status", "order", "12", `{"status":"shipped"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	order, err := repo.UpdateOrderStatus(context.Background(), ops.UpdateOrderStatusInput{
		Actor:   "ops@pharmadesk.example",
		OrderID: 12,
		Status:  ops.OrderStatusShipped,
	})
	if err != nil {
		t.Fatalf("UpdateOrderStatus() error = %v", err)
	}
	if order.Status != ops.OrderStatusShipped {
		t.Fatalf("Status = %q", order.Status)
	}
	if order.ShipperID == nil || *order.ShipperID != 3 {
		t.Fatalf("ShipperID = %#v", order.ShipperID)
	}
	assertSQLMock(t, mock)
}

func TestUpdateOrderStatusRollsBackOnMissingOrder(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`
UPDATE client_order
SET status = $2::pharmadesk_order_status, updated_at = NOW()
WHERE order_id = $1
RETURNING order_id, client_id, status, shipper_id, total_value, placed_at, updated_at`)).
		WithArgs(int64(99), "delivered").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.UpdateOrderStatus(context.Background(), ops.UpdateOrderStatusInput{
		OrderID: 99,
		Status:  ops.OrderStatusDelivered,
	})
	if !errors.Is(err, ops.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, ops.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestAdjustStockClampsAndAudits(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`
UPDATE stock_level
SET on_hand = GREATEST(on_hand + $2, 0),
    reorder_point = COALESCE($3, reorder_point),
    updated_at = NOW()
WHERE drug_id = $1
RETURNING drug_id, on_hand, reorder_point, updated_at`)).
		WithArgs(int64(5), -20, nil).
		WillReturnRows(sqlmock.NewRows([]string{"drug_id", "on_hand", "reorder_point", "updated_at"}).
			AddRow(int64(5), 0, 10, now))
	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO audit_log (actor, action, entity, entity_id, details)
VALUES ($1, $2, $3, $4, $5::jsonb)`)).
		WithArgs("ops@pharmadesk.example", "adjust_stock", "drug", "5", `{"delta":-20}`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	level, err := repo.AdjustStock(context.Background(), ops.AdjustStockInput{
		Actor:  "ops@pharmadesk.example",
		DrugID: 5,
		Delta:  -20,
	})
	if err != nil {
		t.Fatalf("AdjustStock() error = %v", err)
	}
	if level.OnHand != 0 {
		t.Fatalf("OnHand = %d", level.OnHand)
	}
	assertSQLMock(t, mock)
}

func TestCreateSavedSegmentUpsertsByName(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO saved_segment (name, natural_language_query, metadata)
VALUES ($1, $2, $3::jsonb)
ON CONFLICT (name)
DO UPDATE SET
    natural_language_query = EXCLUDED.natural_language_query,
    metadata = EXCLUDED.metadata
RETURNING segment_id, name, natural_language_query, metadata, created_at, last_executed_at`)).
		WithArgs("big spenders", "customers who spent over $500", `{"limit":100}`).
		WillReturnRows(sqlmock.NewRows([]string{
			"segment_id", "name", "natural_language_query", "metadata", "created_at", "last_executed_at",
		}).AddRow("5b2e8f1c-0000-4000-8000-000000000001", "big spenders", "customers who spent over $500", []byte(`{"limit":100}`), now, nil))
	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO audit_log (actor, action, entity, entity_id, details)
VALUES ($1, $2, $3, $4, $5::jsonb)`)).
		WithArgs("ops@pharmadesk.example", "save", "segment", "5b2e8f1c-0000-4000-8000-000000000001", `{"name":"big spenders"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	segment, err := repo.CreateSavedSegment(context.Background(), ops.CreateSavedSegmentInput{
		Actor:                "ops@pharmadesk.example",
		Name:                 "big spenders",
		NaturalLanguageQuery: "customers who spent over $500",
		Metadata:             []byte(`{"limit":100}`),
	})
	if err != nil {
		t.Fatalf("CreateSavedSegment() error = %v", err)
	}
	if segment.SegmentID == "" || segment.LastExecutedAt != nil {
		t.Fatalf("segment = %#v", segment)
	}
	assertSQLMock(t, mock)
}

func TestMarkSavedSegmentExecutedNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	at := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`
UPDATE saved_segment
SET last_executed_at = $2
WHERE segment_id = $1`)).
		WithArgs("missing-segment", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkSavedSegmentExecuted(context.Background(), "missing-segment", at)
	if !errors.Is(err, ops.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, ops.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestDeleteAuditEntriesBindsArrayLiteral(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`
DELETE FROM audit_log
WHERE entry_id = ANY($1)`)).
		WithArgs("{11,12,15}").
		WillReturnResult(sqlmock.NewResult(0, 3))

	deleted, err := repo.DeleteAuditEntries(context.Background(), []int64{11, 12, 15})
	if err != nil {
		t.Fatalf("DeleteAuditEntries() error = %v", err)
	}
	if deleted != 3 {
		t.Fatalf("deleted = %d, want 3", deleted)
	}
	assertSQLMock(t, mock)
}

func TestDeleteAuditEntriesEmptyBatchIsNoop(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	deleted, err := repo.DeleteAuditEntries(context.Background(), nil)
	if err != nil {
		t.Fatalf("DeleteAuditEntries() error = %v", err)
	}
	if deleted != 0 {
		t.Fatalf("deleted = %d, want 0", deleted)
	}
	assertSQLMock(t, mock)
}

func TestCompleteArchiveRun(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	started := time.Now().Add(-time.Minute).UTC()
	completed := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`
UPDATE archive_run
SET status = $2,
    entries_archived = $3,
    objects_written = $4,
    details = $5::jsonb,
    completed_at = NOW()
WHERE run_id = $1
RETURNING run_id, status, entries_archived, objects_written, details, started_at, completed_at`)).
		WithArgs("run-1", "completed", int64(240), 2, `{"pruned":240}`).
		WillReturnRows(sqlmock.NewRows([]string{
			"run_id", "status", "entries_archived", "objects_written", "details", "started_at", "completed_at",
		}).AddRow("run-1", "completed", int64(240), 2, []byte(`{"pruned":240}`), started, completed))

	run, err := repo.CompleteArchiveRun(context.Background(), ops.CompleteArchiveRunInput{
		RunID:           "run-1",
		Status:          "completed",
		EntriesArchived: 240,
		ObjectsWritten:  2,
		Details:         []byte(`{"pruned":240}`),
	})
	if err != nil {
		t.Fatalf("CompleteArchiveRun() error = %v", err)
	}
	if run.CompletedAt == nil || !run.CompletedAt.Equal(completed) {
		t.Fatalf("CompletedAt = %#v", run.CompletedAt)
	}
	assertSQLMock(t, mock)
}

func TestGetStats(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT
    (SELECT COUNT(*) FROM client) AS clients,
    (SELECT COUNT(*) FROM client_order WHERE status IN ('new', 'processing')) AS open_orders,
    (SELECT COUNT(*) FROM stock_level WHERE on_hand <= reorder_point) AS low_stock_drugs,
    (SELECT COUNT(*) FROM audit_log) AS audit_entries`)).
		WillReturnRows(sqlmock.NewRows([]string{"clients", "open_orders", "low_stock_drugs", "audit_entries"}).
			AddRow(int64(120), int64(8), int64(3), int64(950)))

	stats, err := repo.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.Clients != 120 || stats.OpenOrders != 8 || stats.LowStockDrugs != 3 {
		t.Fatalf("stats = %#v", stats)
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
