package ops

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("ops: not found")

// Repository is the persistence boundary for the dashboard domain. Mutations
// carry the acting operator and write an audit entry in the same transaction
// as the row change.
type Repository interface {
	HealthCheck(ctx context.Context) error

	CreateClient(ctx context.Context, in CreateClientInput) (Client, error)
	GetClient(ctx context.Context, clientID int64) (Client, error)
	ListClients(ctx context.Context, in ListClientsInput) ([]Client, error)
	UpdateClient(ctx context.Context, in UpdateClientInput) (Client, error)

	CreateOrder(ctx context.Context, in CreateOrderInput) (Order, error)
	GetOrder(ctx context.Context, orderID int64) (Order, error)
	ListOrders(ctx context.Context, in ListOrdersInput) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, in UpdateOrderStatusInput) (Order, error)
	AssignOrderShipper(ctx context.Context, in AssignOrderShipperInput) (Order, error)

	CreateShipper(ctx context.Context, in CreateShipperInput) (Shipper, error)
	ListShippers(ctx context.Context) ([]Shipper, error)

	CreateDrug(ctx context.Context, in CreateDrugInput) (Drug, error)
	ListDrugs(ctx context.Context, in ListDrugsInput) ([]Drug, error)
	UpdateDrug(ctx context.Context, in UpdateDrugInput) (Drug, error)

	ListStockLevels(ctx context.Context) ([]StockLevel, error)
	AdjustStock(ctx context.Context, in AdjustStockInput) (StockLevel, error)

	ListAuditEntries(ctx context.Context, limit int) ([]AuditEntry, error)
	ListAuditEntriesBefore(ctx context.Context, cutoff time.Time, limit int) ([]AuditEntry, error)
	CountAuditEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAuditEntries(ctx context.Context, entryIDs []int64) (int64, error)

	CreateSavedSegment(ctx context.Context, in CreateSavedSegmentInput) (SavedSegment, error)
	GetSavedSegment(ctx context.Context, segmentID string) (SavedSegment, error)
	ListSavedSegments(ctx context.Context) ([]SavedSegment, error)
	MarkSavedSegmentExecuted(ctx context.Context, segmentID string, at time.Time) error

	CreateArchiveRun(ctx context.Context, in CreateArchiveRunInput) (ArchiveRun, error)
	CompleteArchiveRun(ctx context.Context, in CompleteArchiveRunInput) (ArchiveRun, error)

	GetStats(ctx context.Context) (Stats, error)
}

type OrderStatus string

const (
	OrderStatusNew        OrderStatus = "new"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusNew, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

type Client struct {
	ClientID  int64
	FirstName string
	LastName  string
	Email     string
	Mobile    string
	DayPhone  string
	CreatedAt time.Time
}

type Shipper struct {
	ShipperID int64
	Name      string
	Phone     string
	Active    bool
}

type Drug struct {
	DrugID    int64
	Name      string
	Form      string
	Strength  string
	UnitPrice float64
	Active    bool
}

type Order struct {
	OrderID    int64
	ClientID   int64
	Status     OrderStatus
	ShipperID  *int64
	TotalValue float64
	PlacedAt   time.Time
	UpdatedAt  time.Time
}

type StockLevel struct {
	DrugID       int64
	DrugName     string
	OnHand       int
	ReorderPoint int
	UpdatedAt    time.Time
}

type AuditEntry struct {
	EntryID   int64
	Actor     string
	Action    string
	Entity    string
	EntityID  string
	Details   []byte
	CreatedAt time.Time
}

type SavedSegment struct {
	SegmentID            string
	Name                 string
	NaturalLanguageQuery string
	Metadata             []byte
	CreatedAt            time.Time
	LastExecutedAt       *time.Time
}

type ArchiveRun struct {
	RunID           string
	Status          string
	EntriesArchived int64
	ObjectsWritten  int
	Details         []byte
	StartedAt       time.Time
	CompletedAt     *time.Time
}

type Stats struct {
	Clients       int64
	OpenOrders    int64
	LowStockDrugs int64
	AuditEntries  int64
}

type CreateClientInput struct {
	Actor     string
	FirstName string
	LastName  string
	Email     string
	Mobile    string
	DayPhone  string
}

type ListClientsInput struct {
	Search string
	Limit  int
	Offset int
}

type UpdateClientInput struct {
	Actor     string
	ClientID  int64
	FirstName *string
	LastName  *string
	Email     *string
	Mobile    *string
	DayPhone  *string
}

type CreateOrderInput struct {
	Actor      string
	ClientID   int64
	TotalValue float64
	ShipperID  *int64
}

type ListOrdersInput struct {
	Status   OrderStatus
	ClientID int64
	Limit    int
	Offset   int
}

type UpdateOrderStatusInput struct {
	Actor   string
	OrderID int64
	Status  OrderStatus
}

type AssignOrderShipperInput struct {
	Actor     string
	OrderID   int64
	ShipperID int64
}

type CreateShipperInput struct {
	Actor string
	Name  string
	Phone string
}

type CreateDrugInput struct {
	Actor     string
	Name      string
	Form      string
	Strength  string
	UnitPrice float64
}

type ListDrugsInput struct {
	Search string
	Limit  int
	Offset int
}

type UpdateDrugInput struct {
	Actor     string
	DrugID    int64
	Name      *string
	Form      *string
	Strength  *string
	UnitPrice *float64
	Active    *bool
}

type AdjustStockInput struct {
	Actor        string
	DrugID       int64
	Delta        int
	ReorderPoint *int
}

type CreateSavedSegmentInput struct {
	Actor                string
	Name                 string
	NaturalLanguageQuery string
	Metadata             []byte
}

type CreateArchiveRunInput struct {
	RunID  string
	Status string
}

type CompleteArchiveRunInput struct {
	RunID           string
	Status          string
	EntriesArchived int64
	ObjectsWritten  int
	Details         []byte
}
