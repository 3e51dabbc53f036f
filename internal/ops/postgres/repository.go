package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pharmadesk/pharmadesk/internal/ops"
)

type dbTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping store db: %w", err)
	}
	return nil
}

func (r *Repository) inTx(ctx context.Context, fn func(q dbTX) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// recordAudit writes the audit side-entry for a mutation. It runs on the same
// queryable as the row change so both commit or roll back together.
func recordAudit(ctx context.Context, q dbTX, actor, action, entity, entityID string, details any) error {
	payload := []byte("{}")
	if details != nil {
		encoded, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		payload = encoded
	}
	if actor == "" {
		actor = "system"
	}
	if _, err := q.ExecContext(ctx, `
INSERT INTO audit_log (actor, action, entity, entity_id, details)
VALUES ($1, $2, $3, $4, $5::jsonb)`, actor, action, entity, entityID, string(payload)); err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

func (r *Repository) CreateClient(ctx context.Context, in ops.CreateClientInput) (ops.Client, error) {
	client := ops.Client{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Mobile:    in.Mobile,
		DayPhone:  in.DayPhone,
	}

	err := r.inTx(ctx, func(q dbTX) error {
		if err := q.QueryRowContext(ctx, `
INSERT INTO client (first_name, last_name, email, mobile, day_phone)
VALUES ($1, $2, $3, $4, $5)
RETURNING client_id, created_at`,
			in.FirstName, in.LastName, in.Email, in.Mobile, in.DayPhone,
		).Scan(&client.ClientID, &client.CreatedAt); err != nil {
			return fmt.Errorf("create client: %w", err)
		}
		return recordAudit(ctx, q, in.Actor, "create", "client",
			strconv.FormatInt(client.ClientID, 10), map[string]string{"email": in.Email})
	})
	if err != nil {
		return ops.Client{}, err
	}
	return client, nil
}

func (r *Repository) GetClient(ctx context.Context, clientID int64) (ops.Client, error) {
	return scanClient(r.db.QueryRowContext(ctx, `
SELECT client_id, first_name, last_name, email, mobile, day_phone, created_at
FROM client
WHERE client_id = $1`, clientID))
}

func (r *Repository) ListClients(ctx context.Context, in ops.ListClientsInput) ([]ops.Client, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := in.Offset
	if offset < 0 {
		offset = 0
	}
	search := "%" + in.Search + "%"

	rows, err := r.db.QueryContext(ctx, `
SELECT client_id, first_name, last_name, email, mobile, day_phone, created_at
FROM client
WHERE ($1 = '%%' OR first_name ILIKE $1 OR last_name ILIKE $1 OR email ILIKE $1)
ORDER BY last_name ASC, first_name ASC, client_id ASC
LIMIT $2 OFFSET $3`, search, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	clients := make([]ops.Client, 0)
	for rows.Next() {
		var client ops.Client
		if err := rows.Scan(
			&client.ClientID,
			&client.FirstName,
			&client.LastName,
			&client.Email,
			&client.Mobile,
			&client.DayPhone,
			&client.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan client row: %w", err)
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate client rows: %w", err)
	}
	return clients, nil
}

func (r *Repository) UpdateClient(ctx context.Context, in ops.UpdateClientInput) (ops.Client, error) {
	var client ops.Client
	err := r.inTx(ctx, func(q dbTX) error {
		updated, err := scanClient(q.QueryRowContext(ctx, `
UPDATE client
SET first_name = COALESCE($2, first_name),
    last_name  = COALESCE($3, last_name),
    email      = COALESCE($4, email),
    mobile     = COALESCE($5, mobile),
    day_phone  = COALESCE($6, day_phone)
WHERE client_id = $1
RETURNING client_id, first_name, last_name, email, mobile, day_phone, created_at`,
			in.ClientID, in.FirstName, in.LastName, in.Email, in.Mobile, in.DayPhone))
		if err != nil {
			return err
		}
		client = updated
		return recordAudit(ctx, q, in.Actor, "update", "client",
			strconv.FormatInt(in.ClientID, 10), nil)
	})
	if err != nil {
		return ops.Client{}, err
	}
	return client, nil
}

func (r *Repository) CreateOrder(ctx context.Context, in ops.CreateOrderInput) (ops.Order, error) {
	order := ops.Order{
		ClientID:   in.ClientID,
		Status:     ops.OrderStatusNew,
		ShipperID:  in.ShipperID,
		TotalValue: in.TotalValue,
	}

	err := r.inTx(ctx, func(q dbTX) error {
		if err := q.QueryRowContext(ctx, `
INSERT INTO client_order (client_id, status, shipper_id, total_value)
VALUES ($1, 'new', $2, $3)
RETURNING order_id, placed_at, updated_at`,
			in.ClientID, in.ShipperID, in.TotalValue,
		).Scan(&order.OrderID, &order.PlacedAt, &order.UpdatedAt); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return recordAudit(ctx, q, in.Actor, "create", "order",
			strconv.FormatInt(order.OrderID, 10),
			map[string]any{"client_id": in.ClientID, "total_value": in.TotalValue})
	})
	if err != nil {
		return ops.Order{}, err
	}
	return order, nil
}

func (r *Repository) GetOrder(ctx context.Context, orderID int64) (ops.Order, error) {
	return scanOrder(r.db.QueryRowContext(ctx, `
SELECT order_id, client_id, status, shipper_id, total_value, placed_at, updated_at
FROM client_order
WHERE order_id = $1`, orderID))
}

func (r *Repository) ListOrders(ctx context.Context, in ops.ListOrdersInput) ([]ops.Order, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := in.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT order_id, client_id, status, shipper_id, total_value, placed_at, updated_at
FROM client_order
WHERE ($1 = '' OR status = $1::pharmadesk_order_status)
  AND ($2 = 0 OR client_id = $2)
ORDER BY placed_at DESC, order_id DESC
LIMIT $3 OFFSET $4`, string(in.Status), in.ClientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	orders := make([]ops.Order, 0)
	for rows.Next() {
		var order ops.Order
		if err := rows.Scan(
			&order.OrderID,
			&order.ClientID,
			&order.Status,
			&order.ShipperID,
			&order.TotalValue,
			&order.PlacedAt,
			&order.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, nil
}

func (r *Repository) UpdateOrderStatus(ctx context.Context, in ops.UpdateOrderStatusInput) (ops.Order, error) {
	var order ops.Order
	err := r.inTx(ctx, func(q dbTX) error {
		updated, err := scanOrder(q.QueryRowContext(ctx, `
UPDATE client_order
SET status = $2::pharmadesk_order_status, updated_at = NOW()
WHERE order_id = $1
RETURNING order_id, client_id, status, shipper_id, total_value, placed_at, updated_at`,
			in.OrderID, string(in.Status)))
		if err != nil {
			return err
		}
		order = updated
		return recordAudit(ctx, q, in.Actor, "update_status", "order",
			strconv.FormatInt(in.OrderID, 10), map[string]string{"status": string(in.Status)})
	})
	if err != nil {
		return ops.Order{}, err
	}
	return order, nil
}

func (r *Repository) AssignOrderShipper(ctx context.Context, in ops.AssignOrderShipperInput) (ops.Order, error) {
	var order ops.Order
	err := r.inTx(ctx, func(q dbTX) error {
		updated, err := scanOrder(q.QueryRowContext(ctx, `
UPDATE client_order
SET shipper_id = $2, updated_at = NOW()
WHERE order_id = $1
RETURNING order_id, client_id, status, shipper_id, total_value, placed_at, updated_at`,
			in.OrderID, in.ShipperID))
		if err != nil {
			return err
		}
		order = updated
		return recordAudit(ctx, q, in.Actor, "assign_shipper", "order",
			strconv.FormatInt(in.OrderID, 10), map[string]int64{"shipper_id": in.ShipperID})
	})
	if err != nil {
		return ops.Order{}, err
	}
	return order, nil
}

func (r *Repository) CreateShipper(ctx context.Context, in ops.CreateShipperInput) (ops.Shipper, error) {
	shipper := ops.Shipper{Name: in.Name, Phone: in.Phone, Active: true}

	err := r.inTx(ctx, func(q dbTX) error {
		if err := q.QueryRowContext(ctx, `
INSERT INTO shipper (name, phone, active)
VALUES ($1, $2, TRUE)
RETURNING shipper_id`, in.Name, in.Phone).Scan(&shipper.ShipperID); err != nil {
			return fmt.Errorf("create shipper: %w", err)
		}
		return recordAudit(ctx, q, in.Actor, "create", "shipper",
			strconv.FormatInt(shipper.ShipperID, 10), map[string]string{"name": in.Name})
	})
	if err != nil {
		return ops.Shipper{}, err
	}
	return shipper, nil
}

func (r *Repository) ListShippers(ctx context.Context) ([]ops.Shipper, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT shipper_id, name, phone, active
FROM shipper
ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list shippers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	shippers := make([]ops.Shipper, 0)
	for rows.Next() {
		var shipper ops.Shipper
		if err := rows.Scan(&shipper.ShipperID, &shipper.Name, &shipper.Phone, &shipper.Active); err != nil {
			return nil, fmt.Errorf("scan shipper row: %w", err)
		}
		shippers = append(shippers, shipper)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shipper rows: %w", err)
	}
	return shippers, nil
}

func (r *Repository) CreateDrug(ctx context.Context, in ops.CreateDrugInput) (ops.Drug, error) {
	drug := ops.Drug{
		Name:      in.Name,
		Form:      in.Form,
		Strength:  in.Strength,
		UnitPrice: in.UnitPrice,
		Active:    true,
	}

	err := r.inTx(ctx, func(q dbTX) error {
		if err := q.QueryRowContext(ctx, `
INSERT INTO drug (name, form, strength, unit_price, active)
VALUES ($1, $2, $3, $4, TRUE)
RETURNING drug_id`, in.Name, in.Form, in.Strength, in.UnitPrice).Scan(&drug.DrugID); err != nil {
			return fmt.Errorf("create drug: %w", err)
		}
		if _, err := q.ExecContext(ctx, `
INSERT INTO stock_level (drug_id, on_hand, reorder_point)
VALUES ($1, 0, 0)
ON CONFLICT (drug_id) DO NOTHING`, drug.DrugID); err != nil {
			return fmt.Errorf("init stock level: %w", err)
		}
		return recordAudit(ctx, q, in.Actor, "create", "drug",
			strconv.FormatInt(drug.DrugID, 10), map[string]string{"name": in.Name})
	})
	if err != nil {
		return ops.Drug{}, err
	}
	return drug, nil
}

func (r *Repository) ListDrugs(ctx context.Context, in ops.ListDrugsInput) ([]ops.Drug, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := in.Offset
	if offset < 0 {
		offset = 0
	}
	search := "%" + in.Search + "%"

	rows, err := r.db.QueryContext(ctx, `
SELECT drug_id, name, form, strength, unit_price, active
FROM drug
WHERE ($1 = '%%' OR name ILIKE $1)
ORDER BY name ASC
LIMIT $2 OFFSET $3`, search, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list drugs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	drugs := make([]ops.Drug, 0)
	for rows.Next() {
		var drug ops.Drug
		if err := rows.Scan(&drug.DrugID, &drug.Name, &drug.Form, &drug.Strength, &drug.UnitPrice, &drug.Active); err != nil {
			return nil, fmt.Errorf("scan drug row: %w", err)
		}
		drugs = append(drugs, drug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drug rows: %w", err)
	}
	return drugs, nil
}

func (r *Repository) UpdateDrug(ctx context.Context, in ops.UpdateDrugInput) (ops.Drug, error) {
	var drug ops.Drug
	err := r.inTx(ctx, func(q dbTX) error {
		if err := q.QueryRowContext(ctx, `
UPDATE drug
SET name       = COALESCE($2, name),
    form       = COALESCE($3, form),
    strength   = COALESCE($4, strength),
    unit_price = COALESCE($5, unit_price),
    active     = COALESCE($6, active)
WHERE drug_id = $1
RETURNING drug_id, name, form, strength, unit_price, active`,
			in.DrugID, in.Name, in.Form, in.Strength, in.UnitPrice, in.Active,
		).Scan(&drug.DrugID, &drug.Name, &drug.Form, &drug.Strength, &drug.UnitPrice, &drug.Active); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ops.ErrNotFound
			}
			return fmt.Errorf("update drug: %w", err)
		}
		return recordAudit(ctx, q, in.Actor, "update", "drug",
			strconv.FormatInt(in.DrugID, 10), nil)
	})
	if err != nil {
		return ops.Drug{}, err
	}
	return drug, nil
}

func (r *Repository) ListStockLevels(ctx context.Context) ([]ops.StockLevel, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT sl.drug_id, d.name, sl.on_hand, sl.reorder_point, sl.updated_at
FROM stock_level AS sl
JOIN drug AS d ON d.drug_id = sl.drug_id
ORDER BY d.name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list stock levels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	levels := make([]ops.StockLevel, 0)
	for rows.Next() {
		var level ops.StockLevel
		if err := rows.Scan(&level.DrugID, &level.DrugName, &level.OnHand, &level.ReorderPoint, &level.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan stock level row: %w", err)
		}
		levels = append(levels, level)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock level rows: %w", err)
	}
	return levels, nil
}

func (r *Repository) AdjustStock(ctx context.Context, in ops.AdjustStockInput) (ops.StockLevel, error) {
	var level ops.StockLevel
	err := r.inTx(ctx, func(q dbTX) error {
		if err := q.QueryRowContext(ctx, `
UPDATE stock_level
SET on_hand = GREATEST(on_hand + $2, 0),
    reorder_point = COALESCE($3, reorder_point),
    updated_at = NOW()
WHERE drug_id = $1
RETURNING drug_id, on_hand, reorder_point, updated_at`,
			in.DrugID, in.Delta, in.ReorderPoint,
		).Scan(&level.DrugID, &level.OnHand, &level.ReorderPoint, &level.UpdatedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ops.ErrNotFound
			}
			return fmt.Errorf("adjust stock: %w", err)
		}
		return recordAudit(ctx, q, in.Actor, "adjust_stock", "drug",
			strconv.FormatInt(in.DrugID, 10), map[string]int{"delta": in.Delta})
	})
	if err != nil {
		return ops.StockLevel{}, err
	}
	return level, nil
}

func (r *Repository) ListAuditEntries(ctx context.Context, limit int) ([]ops.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT entry_id, actor, action, entity, entity_id, details, created_at
FROM audit_log
ORDER BY entry_id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return collectAuditRows(rows)
}

func (r *Repository) ListAuditEntriesBefore(ctx context.Context, cutoff time.Time, limit int) ([]ops.AuditEntry, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT entry_id, actor, action, entity, entity_id, details, created_at
FROM audit_log
WHERE created_at < $1
ORDER BY entry_id ASC
LIMIT $2`, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries before cutoff: %w", err)
	}
	return collectAuditRows(rows)
}

func (r *Repository) CountAuditEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM audit_log
WHERE created_at < $1`, cutoff.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit entries before cutoff: %w", err)
	}
	return count, nil
}

func (r *Repository) DeleteAuditEntries(ctx context.Context, entryIDs []int64) (int64, error) {
	if len(entryIDs) == 0 {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx, `
DELETE FROM audit_log
WHERE entry_id = ANY($1)`, int64Array(entryIDs))
	if err != nil {
		return 0, fmt.Errorf("delete audit entries: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete audit entries rows affected: %w", err)
	}
	return deleted, nil
}

func (r *Repository) CreateSavedSegment(ctx context.Context, in ops.CreateSavedSegmentInput) (ops.SavedSegment, error) {
	metadata := in.Metadata
	var metadataArg any
	if len(metadata) > 0 {
		metadataArg = string(metadata)
	}

	var segment ops.SavedSegment
	err := r.inTx(ctx, func(q dbTX) error {
		if err := q.QueryRowContext(ctx, `
INSERT INTO saved_segment (name, natural_language_query, metadata)
VALUES ($1, $2, $3::jsonb)
ON CONFLICT (name)
DO UPDATE SET
    natural_language_query = EXCLUDED.natural_language_query,
    metadata = EXCLUDED.metadata
RETURNING segment_id, name, natural_language_query, metadata, created_at, last_executed_at`,
			in.Name, in.NaturalLanguageQuery, metadataArg,
		).Scan(
			&segment.SegmentID,
			&segment.Name,
			&segment.NaturalLanguageQuery,
			&segment.Metadata,
			&segment.CreatedAt,
			&segment.LastExecutedAt,
		); err != nil {
			return fmt.Errorf("save segment: %w", err)
		}
		return recordAudit(ctx, q, in.Actor, "save", "segment", segment.SegmentID,
			map[string]string{"name": in.Name})
	})
	if err != nil {
		return ops.SavedSegment{}, err
	}
	return segment, nil
}

func (r *Repository) GetSavedSegment(ctx context.Context, segmentID string) (ops.SavedSegment, error) {
	var segment ops.SavedSegment
	if err := r.db.QueryRowContext(ctx, `
SELECT segment_id, name, natural_language_query, metadata, created_at, last_executed_at
FROM saved_segment
WHERE segment_id = $1`, segmentID).Scan(
		&segment.SegmentID,
		&segment.Name,
		&segment.NaturalLanguageQuery,
		&segment.Metadata,
		&segment.CreatedAt,
		&segment.LastExecutedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ops.SavedSegment{}, ops.ErrNotFound
		}
		return ops.SavedSegment{}, fmt.Errorf("get saved segment: %w", err)
	}
	return segment, nil
}

func (r *Repository) ListSavedSegments(ctx context.Context) ([]ops.SavedSegment, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT segment_id, name, natural_language_query, metadata, created_at, last_executed_at
FROM saved_segment
ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list saved segments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	segments := make([]ops.SavedSegment, 0)
	for rows.Next() {
		var segment ops.SavedSegment
		if err := rows.Scan(
			&segment.SegmentID,
			&segment.Name,
			&segment.NaturalLanguageQuery,
			&segment.Metadata,
			&segment.CreatedAt,
			&segment.LastExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("scan saved segment row: %w", err)
		}
		segments = append(segments, segment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saved segment rows: %w", err)
	}
	return segments, nil
}

func (r *Repository) MarkSavedSegmentExecuted(ctx context.Context, segmentID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE saved_segment
SET last_executed_at = $2
WHERE segment_id = $1`, segmentID, at.UTC())
	if err != nil {
		return fmt.Errorf("mark saved segment executed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark saved segment executed rows affected: %w", err)
	}
	if rows == 0 {
		return ops.ErrNotFound
	}
	return nil
}

func (r *Repository) CreateArchiveRun(ctx context.Context, in ops.CreateArchiveRunInput) (ops.ArchiveRun, error) {
	status := in.Status
	if status == "" {
		status = "running"
	}

	run := ops.ArchiveRun{RunID: in.RunID, Status: status}
	if err := r.db.QueryRowContext(ctx, `
INSERT INTO archive_run (run_id, status)
VALUES ($1, $2)
RETURNING started_at`, in.RunID, status).Scan(&run.StartedAt); err != nil {
		return ops.ArchiveRun{}, fmt.Errorf("create archive run: %w", err)
	}
	return run, nil
}

func (r *Repository) CompleteArchiveRun(ctx context.Context, in ops.CompleteArchiveRunInput) (ops.ArchiveRun, error) {
	details := in.Details
	if len(details) == 0 {
		details = []byte("{}")
	}
	status := in.Status
	if status == "" {
		status = "completed"
	}

	var run ops.ArchiveRun
	if err := r.db.QueryRowContext(ctx, `
UPDATE archive_run
SET status = $2,
    entries_archived = $3,
    objects_written = $4,
    details = $5::jsonb,
    completed_at = NOW()
WHERE run_id = $1
RETURNING run_id, status, entries_archived, objects_written, details, started_at, completed_at`,
		in.RunID, status, in.EntriesArchived, in.ObjectsWritten, string(details),
	).Scan(
		&run.RunID,
		&run.Status,
		&run.EntriesArchived,
		&run.ObjectsWritten,
		&run.Details,
		&run.StartedAt,
		&run.CompletedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ops.ArchiveRun{}, ops.ErrNotFound
		}
		return ops.ArchiveRun{}, fmt.Errorf("complete archive run: %w", err)
	}
	return run, nil
}

func (r *Repository) GetStats(ctx context.Context) (ops.Stats, error) {
	var stats ops.Stats
	if err := r.db.QueryRowContext(ctx, `
SELECT
    (SELECT COUNT(*) FROM client) AS clients,
    (SELECT COUNT(*) FROM client_order WHERE status IN ('new', 'processing')) AS open_orders,
    (SELECT COUNT(*) FROM stock_level WHERE on_hand <= reorder_point) AS low_stock_drugs,
    (SELECT COUNT(*) FROM audit_log) AS audit_entries`).Scan(
		&stats.Clients,
		&stats.OpenOrders,
		&stats.LowStockDrugs,
		&stats.AuditEntries,
	); err != nil {
		return ops.Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return stats, nil
}

func collectAuditRows(rows *sql.Rows) ([]ops.AuditEntry, error) {
	defer func() { _ = rows.Close() }()

	entries := make([]ops.AuditEntry, 0)
	for rows.Next() {
		var entry ops.AuditEntry
		if err := rows.Scan(
			&entry.EntryID,
			&entry.Actor,
			&entry.Action,
			&entry.Entity,
			&entry.EntityID,
			&entry.Details,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return entries, nil
}

func scanClient(row *sql.Row) (ops.Client, error) {
	var client ops.Client
	if err := row.Scan(
		&client.ClientID,
		&client.FirstName,
		&client.LastName,
		&client.Email,
		&client.Mobile,
		&client.DayPhone,
		&client.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ops.Client{}, ops.ErrNotFound
		}
		return ops.Client{}, fmt.Errorf("scan client: %w", err)
	}
	return client, nil
}

func scanOrder(row *sql.Row) (ops.Order, error) {
	var order ops.Order
	if err := row.Scan(
		&order.OrderID,
		&order.ClientID,
		&order.Status,
		&order.ShipperID,
		&order.TotalValue,
		&order.PlacedAt,
		&order.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ops.Order{}, ops.ErrNotFound
		}
		return ops.Order{}, fmt.Errorf("scan order: %w", err)
	}
	return order, nil
}

// int64Array renders ids as a postgres array literal so entry batches can be
// bound as a single parameter through database/sql.
func int64Array(ids []int64) string {
	out := "{"
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += strconv.FormatInt(id, 10)
	}
	return out + "}"
}
