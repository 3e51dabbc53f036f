package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/pharmadesk/pharmadesk/internal/ops"
)

// Store is the subset of the repository the seeder writes through.
// ops.Repository satisfies it.
type Store interface {
	CreateClient(ctx context.Context, in ops.CreateClientInput) (ops.Client, error)
	CreateShipper(ctx context.Context, in ops.CreateShipperInput) (ops.Shipper, error)
	CreateDrug(ctx context.Context, in ops.CreateDrugInput) (ops.Drug, error)
	CreateOrder(ctx context.Context, in ops.CreateOrderInput) (ops.Order, error)
	UpdateOrderStatus(ctx context.Context, in ops.UpdateOrderStatusInput) (ops.Order, error)
	AdjustStock(ctx context.Context, in ops.AdjustStockInput) (ops.StockLevel, error)
}

type Config struct {
	Seed               int64
	Clients            int
	Drugs              int
	MaxOrdersPerClient int
	Actor              string
}

func (c Config) withDefaults() Config {
	if c.Clients <= 0 {
		c.Clients = 50
	}
	if c.Drugs <= 0 {
		c.Drugs = 20
	}
	if c.MaxOrdersPerClient <= 0 {
		c.MaxOrdersPerClient = 6
	}
	if c.Actor == "" {
		c.Actor = "pharmadesk-seed"
	}
	return c
}

type Summary struct {
	Clients  int
	Shippers int
	Drugs    int
	Orders   int
}

type Seeder struct {
	Store  Store
	Logger *slog.Logger
	Config Config
}

var (
	firstNames = []string{"Ada", "Bram", "Chiara", "Daan", "Elif", "Femke", "Gustav", "Hana", "Imran", "Jolien", "Koen", "Lena", "Milan", "Noor", "Otto", "Priya", "Quinn", "Rosa", "Sven", "Tara"}
	lastNames  = []string{"Okafor", "Jansen", "Ricci", "Visser", "Yilmaz", "Bakker", "Lindgren", "Novak", "Haddad", "Peeters", "Smit", "Kovacs", "Dubois", "Meyer", "Berg", "Sharma", "Doyle", "Moreno", "Eriksen", "Nagy"}

	shipperNames = []string{"MediExpress", "PharmaFleet", "CityCourier"}

	drugNames = []string{"Amoxicillin", "Ibuprofen", "Metformin", "Lisinopril", "Atorvastatin", "Omeprazole", "Cetirizine", "Sertraline", "Amlodipine", "Paracetamol", "Azithromycin", "Salbutamol", "Levothyroxine", "Pantoprazole", "Simvastatin", "Loratadine", "Ramipril", "Diclofenac", "Warfarin", "Furosemide"}
	drugForms = []string{"tablet", "capsule", "syrup", "injection"}
)

// Run populates the store with a deterministic demo dataset. Orders are
// spread across statuses so segment queries and the dashboard have something
// to chew on, including clients with no orders at all.
func (s *Seeder) Run(ctx context.Context) (Summary, error) {
	cfg := s.Config.withDefaults()
	rnd := rand.New(rand.NewSource(cfg.Seed))
	summary := Summary{}

	shippers := make([]ops.Shipper, 0, len(shipperNames))
	for _, name := range shipperNames {
		shipper, err := s.Store.CreateShipper(ctx, ops.CreateShipperInput{
			Actor: cfg.Actor,
			Name:  name,
			Phone: fmt.Sprintf("+31 20 %07d", rnd.Intn(10000000)),
		})
		if err != nil {
			return summary, fmt.Errorf("seed shipper %q: %w", name, err)
		}
		shippers = append(shippers, shipper)
		summary.Shippers++
	}

	drugs := make([]ops.Drug, 0, cfg.Drugs)
	for i := 0; i < cfg.Drugs; i++ {
		name := drugNames[i%len(drugNames)]
		if i >= len(drugNames) {
			name = fmt.Sprintf("%s %d", name, i/len(drugNames)+1)
		}
		drug, err := s.Store.CreateDrug(ctx, ops.CreateDrugInput{
			Actor:     cfg.Actor,
			Name:      name,
			Form:      drugForms[rnd.Intn(len(drugForms))],
			Strength:  fmt.Sprintf("%dmg", (rnd.Intn(10)+1)*50),
			UnitPrice: round2(2 + rnd.Float64()*48),
		})
		if err != nil {
			return summary, fmt.Errorf("seed drug %q: %w", name, err)
		}
		drugs = append(drugs, drug)
		summary.Drugs++

		reorder := 10 + rnd.Intn(40)
		if _, err := s.Store.AdjustStock(ctx, ops.AdjustStockInput{
			Actor:        cfg.Actor,
			DrugID:       drug.DrugID,
			Delta:        rnd.Intn(200),
			ReorderPoint: &reorder,
		}); err != nil {
			return summary, fmt.Errorf("seed stock for %q: %w", name, err)
		}
	}

	for i := 0; i < cfg.Clients; i++ {
		first := firstNames[rnd.Intn(len(firstNames))]
		last := lastNames[rnd.Intn(len(lastNames))]
		client, err := s.Store.CreateClient(ctx, ops.CreateClientInput{
			Actor:     cfg.Actor,
			FirstName: first,
			LastName:  last,
			Email:     fmt.Sprintf("%s.%s.%d@example.com", lower(first), lower(last), i),
			Mobile:    fmt.Sprintf("+31 6 %08d", rnd.Intn(100000000)),
		})
		if err != nil {
			return summary, fmt.Errorf("seed client %d: %w", i, err)
		}
		summary.Clients++

		// roughly one in five clients stays order-free
		if rnd.Intn(5) == 0 {
			continue
		}
		orderCount := 1 + rnd.Intn(cfg.MaxOrdersPerClient)
		for j := 0; j < orderCount; j++ {
			in := ops.CreateOrderInput{
				Actor:      cfg.Actor,
				ClientID:   client.ClientID,
				TotalValue: round2(10 + rnd.Float64()*490),
			}
			if rnd.Intn(3) > 0 {
				shipperID := shippers[rnd.Intn(len(shippers))].ShipperID
				in.ShipperID = &shipperID
			}
			order, err := s.Store.CreateOrder(ctx, in)
			if err != nil {
				return summary, fmt.Errorf("seed order for client %d: %w", client.ClientID, err)
			}
			summary.Orders++

			if status := s.pickStatus(rnd); status != ops.OrderStatusNew {
				if _, err := s.Store.UpdateOrderStatus(ctx, ops.UpdateOrderStatusInput{
					Actor:   cfg.Actor,
					OrderID: order.OrderID,
					Status:  status,
				}); err != nil {
					return summary, fmt.Errorf("seed order status: %w", err)
				}
			}
		}
	}

	if s.Logger != nil {
		s.Logger.Info("demo data seeded",
			slog.Int("clients", summary.Clients),
			slog.Int("shippers", summary.Shippers),
			slog.Int("drugs", summary.Drugs),
			slog.Int("orders", summary.Orders))
	}
	return summary, nil
}

func (s *Seeder) pickStatus(rnd *rand.Rand) ops.OrderStatus {
	p := rnd.Intn(100)
	switch {
	case p < 20:
		return ops.OrderStatusNew
	case p < 40:
		return ops.OrderStatusProcessing
	case p < 60:
		return ops.OrderStatusShipped
	case p < 90:
		return ops.OrderStatusDelivered
	default:
		return ops.OrderStatusCancelled
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
