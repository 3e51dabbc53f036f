package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pharmadesk/pharmadesk/internal/archive"
	"github.com/pharmadesk/pharmadesk/internal/config"
	"github.com/pharmadesk/pharmadesk/internal/ops"
	"github.com/pharmadesk/pharmadesk/internal/segment"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("pharmadesk-api", func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSegments struct {
	resp segment.QueryResponse
	err  error
	got  []segment.QueryRequest
}

func (s *stubSegments) Query(_ context.Context, req segment.QueryRequest) (segment.QueryResponse, error) {
	s.got = append(s.got, req)
	if s.err != nil {
		return segment.QueryResponse{}, s.err
	}
	return s.resp, nil
}

type stubArchiver struct {
	summary archive.RunSummary
	err     error
	calls   int
}

func (s *stubArchiver) RunOnce(context.Context) (archive.RunSummary, error) {
	s.calls++
	return s.summary, s.err
}

type stubArchiveQuery struct {
	result archive.QueryResult
	err    error
	got    []archive.QueryRequest
}

func (s *stubArchiveQuery) Query(_ context.Context, req archive.QueryRequest) (archive.QueryResult, error) {
	s.got = append(s.got, req)
	if s.err != nil {
		return archive.QueryResult{}, s.err
	}
	return s.result, nil
}

// stubRepo lets each test wire only the methods it expects to be hit.
type stubRepo struct {
	createClient       func(ops.CreateClientInput) (ops.Client, error)
	getClient          func(int64) (ops.Client, error)
	listClients        func(ops.ListClientsInput) ([]ops.Client, error)
	updateClient       func(ops.UpdateClientInput) (ops.Client, error)
	createOrder        func(ops.CreateOrderInput) (ops.Order, error)
	getOrder           func(int64) (ops.Order, error)
	listOrders         func(ops.ListOrdersInput) ([]ops.Order, error)
	updateOrderStatus  func(ops.UpdateOrderStatusInput) (ops.Order, error)
	assignOrderShipper func(ops.AssignOrderShipperInput) (ops.Order, error)
	createShipper      func(ops.CreateShipperInput) (ops.Shipper, error)
	listShippers       func() ([]ops.Shipper, error)
	createDrug         func(ops.CreateDrugInput) (ops.Drug, error)
	listDrugs          func(ops.ListDrugsInput) ([]ops.Drug, error)
	updateDrug         func(ops.UpdateDrugInput) (ops.Drug, error)
	listStock          func() ([]ops.StockLevel, error)
	adjustStock        func(ops.AdjustStockInput) (ops.StockLevel, error)
	listAudit          func(int) ([]ops.AuditEntry, error)
	createSegment      func(ops.CreateSavedSegmentInput) (ops.SavedSegment, error)
	getSegment         func(string) (ops.SavedSegment, error)
	listSegments       func() ([]ops.SavedSegment, error)
	markExecuted       func(string, time.Time) error
	getStats           func() (ops.Stats, error)
}

func (s *stubRepo) HealthCheck(context.Context) error { return nil }

func (s *stubRepo) CreateClient(_ context.Context, in ops.CreateClientInput) (ops.Client, error) {
	return s.createClient(in)
}

func (s *stubRepo) GetClient(_ context.Context, id int64) (ops.Client, error) {
	return s.getClient(id)
}

func (s *stubRepo) ListClients(_ context.Context, in ops.ListClientsInput) ([]ops.Client, error) {
	return s.listClients(in)
}

func (s *stubRepo) UpdateClient(_ context.Context, in ops.UpdateClientInput) (ops.Client, error) {
	return s.updateClient(in)
}

func (s *stubRepo) CreateOrder(_ context.Context, in ops.CreateOrderInput) (ops.Order, error) {
	return s.createOrder(in)
}

func (s *stubRepo) GetOrder(_ context.Context, id int64) (ops.Order, error) {
	return s.getOrder(id)
}

func (s *stubRepo) ListOrders(_ context.Context, in ops.ListOrdersInput) ([]ops.Order, error) {
	return s.listOrders(in)
}

func (s *stubRepo) UpdateOrderStatus(_ context.Context, in ops.UpdateOrderStatusInput) (ops.Order, error) {
	return s.updateOrderStatus(in)
}

func (s *stubRepo) AssignOrderShipper(_ context.Context, in ops.AssignOrderShipperInput) (ops.Order, error) {
	return s.assignOrderShipper(in)
}

func (s *stubRepo) CreateShipper(_ context.Context, in ops.CreateShipperInput) (ops.Shipper, error) {
	return s.createShipper(in)
}

func (s *stubRepo) ListShippers(context.Context) ([]ops.Shipper, error) {
	return s.listShippers()
}

func (s *stubRepo) CreateDrug(_ context.Context, in ops.CreateDrugInput) (ops.Drug, error) {
	return s.createDrug(in)
}

func (s *stubRepo) ListDrugs(_ context.Context, in ops.ListDrugsInput) ([]ops.Drug, error) {
	return s.listDrugs(in)
}

func (s *stubRepo) UpdateDrug(_ context.Context, in ops.UpdateDrugInput) (ops.Drug, error) {
	return s.updateDrug(in)
}

func (s *stubRepo) ListStockLevels(context.Context) ([]ops.StockLevel, error) {
	return s.listStock()
}

func (s *stubRepo) AdjustStock(_ context.Context, in ops.AdjustStockInput) (ops.StockLevel, error) {
	return s.adjustStock(in)
}

func (s *stubRepo) ListAuditEntries(_ context.Context, limit int) ([]ops.AuditEntry, error) {
	return s.listAudit(limit)
}

func (s *stubRepo) ListAuditEntriesBefore(context.Context, time.Time, int) ([]ops.AuditEntry, error) {
	return nil, nil
}

func (s *stubRepo) CountAuditEntriesBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *stubRepo) DeleteAuditEntries(context.Context, []int64) (int64, error) {
	return 0, nil
}

func (s *stubRepo) CreateSavedSegment(_ context.Context, in ops.CreateSavedSegmentInput) (ops.SavedSegment, error) {
	return s.createSegment(in)
}

func (s *stubRepo) GetSavedSegment(_ context.Context, id string) (ops.SavedSegment, error) {
	return s.getSegment(id)
}

func (s *stubRepo) ListSavedSegments(context.Context) ([]ops.SavedSegment, error) {
	return s.listSegments()
}

func (s *stubRepo) MarkSavedSegmentExecuted(_ context.Context, id string, at time.Time) error {
	return s.markExecuted(id, at)
}

func (s *stubRepo) CreateArchiveRun(context.Context, ops.CreateArchiveRunInput) (ops.ArchiveRun, error) {
	return ops.ArchiveRun{}, nil
}

func (s *stubRepo) CompleteArchiveRun(context.Context, ops.CompleteArchiveRunInput) (ops.ArchiveRun, error) {
	return ops.ArchiveRun{}, nil
}

func (s *stubRepo) GetStats(context.Context) (ops.Stats, error) {
	return s.getStats()
}

func newTestHandler(t *testing.T, mutate func(*config.Config, *Dependencies)) http.Handler {
	t.Helper()
	cfg := testConfig(t)
	deps := Dependencies{
		Logger:       testLogger(),
		Repo:         &stubRepo{},
		Segments:     &stubSegments{},
		DefaultActor: "system",
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	return NewHandler(cfg, deps)
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(target); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}

func assertErrorEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var envelope map[string]string
	decodeBody(t, rec, &envelope)
	if envelope["error"] == "" {
		t.Fatal("expected non-empty error field")
	}
	if envelope["message"] == "" {
		t.Fatal("expected non-empty message field")
	}
	if len(envelope) != 2 {
		t.Fatalf("expected exactly error and message fields, got %v", envelope)
	}
	return envelope
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestHandler(t, nil)

	rec := doJSON(t, handler, http.MethodGet, "/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %q", body["status"])
	}
	if body["service"] != "pharmadesk-api" {
		t.Fatalf("unexpected service name %q", body["service"])
	}
}

func TestReadyReportsDependencyFailure(t *testing.T) {
	handler := newTestHandler(t, func(_ *config.Config, deps *Dependencies) {
		deps.Readiness = CombineReadinessChecks(
			func(context.Context) error { return nil },
			func(context.Context) error { return context.DeadlineExceeded },
		)
	})

	rec := doJSON(t, handler, http.MethodGet, "/v1/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	assertErrorEnvelope(t, rec)
}

func TestMetricsEndpointExposed(t *testing.T) {
	handler := newTestHandler(t, nil)

	rec := doJSON(t, handler, http.MethodGet, "/v1/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_") {
		t.Fatal("expected prometheus metrics output")
	}
}

func TestProtectedRoutesRequireAuthWhenConfigured(t *testing.T) {
	authCalls := 0
	handler := newTestHandler(t, func(cfg *config.Config, deps *Dependencies) {
		cfg.Auth.Required = true
		deps.AuthMiddleware = func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				authCalls++
				if r.Header.Get("X-API-Key") == "" {
					writeError(w, http.StatusUnauthorized, "unauthorized", "an API key is required")
					return
				}
				next.ServeHTTP(w, r)
			})
		}
		deps.Repo = &stubRepo{
			listClients: func(ops.ListClientsInput) ([]ops.Client, error) { return nil, nil },
		}
	})

	rec := doJSON(t, handler, http.MethodGet, "/v1/clients", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}
	if authCalls != 1 {
		t.Fatalf("expected auth middleware to run once, ran %d times", authCalls)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/clients", nil)
	req.Header.Set("X-API-Key", "local-key")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", rec2.Code)
	}
}

func TestSegmentQueryBypassesAuth(t *testing.T) {
	handler := newTestHandler(t, func(cfg *config.Config, deps *Dependencies) {
		cfg.Auth.Required = true
		deps.AuthMiddleware = func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "an API key is required")
			})
		}
		deps.Segments = &stubSegments{resp: segment.QueryResponse{
			Message: "Found 0 results",
			Results: []segment.CustomerRow{},
			QueryID: "8d9b4f43-3f7b-4d2e-a9a4-6a1d1cf8f111",
		}}
	})

	rec := doJSON(t, handler, http.MethodPost, "/v1/segments/query", `{"query":"big spenders"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected segment query to bypass auth, got %d", rec.Code)
	}
}
