package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pharmadesk/pharmadesk/internal/archive"
	"github.com/pharmadesk/pharmadesk/internal/config"
	"github.com/pharmadesk/pharmadesk/internal/observability"
	"github.com/pharmadesk/pharmadesk/internal/ops"
	"github.com/pharmadesk/pharmadesk/internal/segment"
)

type ReadinessCheck func(ctx context.Context) error

// SegmentQuerier resolves natural-language segmentation requests.
type SegmentQuerier interface {
	Query(ctx context.Context, req segment.QueryRequest) (segment.QueryResponse, error)
}

type ArchiveRunner interface {
	RunOnce(ctx context.Context) (archive.RunSummary, error)
}

type ArchiveQuerier interface {
	Query(ctx context.Context, req archive.QueryRequest) (archive.QueryResult, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Repo              ops.Repository
	Segments          SegmentQuerier
	Archiver          ArchiveRunner
	ArchiveQuery      ArchiveQuerier
	DefaultActor      string
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	// The segmentation boundary is reachable from browser dashboards and
	// carries its own CORS gate; it stays outside the API-key wrapper.
	mux.HandleFunc("OPTIONS /v1/segments/query", func(w http.ResponseWriter, _ *http.Request) {
		corsHeaders(w)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /v1/segments/query", func(w http.ResponseWriter, r *http.Request) {
		handleSegmentQuery(deps, w, r)
	})

	protected := http.NewServeMux()
	protected.HandleFunc("GET /v1/segments", func(w http.ResponseWriter, r *http.Request) {
		handleListSegments(deps, w, r)
	})
	protected.HandleFunc("POST /v1/segments", func(w http.ResponseWriter, r *http.Request) {
		handleSaveSegment(deps, w, r)
	})
	protected.HandleFunc("POST /v1/segments/{id}/run", func(w http.ResponseWriter, r *http.Request) {
		handleRunSegment(deps, w, r)
	})

	protected.HandleFunc("GET /v1/clients", func(w http.ResponseWriter, r *http.Request) {
		handleListClients(deps, w, r)
	})
	protected.HandleFunc("POST /v1/clients", func(w http.ResponseWriter, r *http.Request) {
		handleCreateClient(deps, w, r)
	})
	protected.HandleFunc("GET /v1/clients/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleGetClient(deps, w, r)
	})
	protected.HandleFunc("PATCH /v1/clients/{id}", func(w http.ResponseWriter, r *http.Request) {
		handlePatchClient(deps, w, r)
	})

	protected.HandleFunc("GET /v1/orders", func(w http.ResponseWriter, r *http.Request) {
		handleListOrders(deps, w, r)
	})
	protected.HandleFunc("POST /v1/orders", func(w http.ResponseWriter, r *http.Request) {
		handleCreateOrder(deps, w, r)
	})
	protected.HandleFunc("GET /v1/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleGetOrder(deps, w, r)
	})
	protected.HandleFunc("PATCH /v1/orders/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		handleOrderStatus(deps, w, r)
	})
	protected.HandleFunc("PATCH /v1/orders/{id}/shipper", func(w http.ResponseWriter, r *http.Request) {
		handleOrderShipper(deps, w, r)
	})

	protected.HandleFunc("GET /v1/shippers", func(w http.ResponseWriter, r *http.Request) {
		handleListShippers(deps, w, r)
	})
	protected.HandleFunc("POST /v1/shippers", func(w http.ResponseWriter, r *http.Request) {
		handleCreateShipper(deps, w, r)
	})

	protected.HandleFunc("GET /v1/drugs", func(w http.ResponseWriter, r *http.Request) {
		handleListDrugs(deps, w, r)
	})
	protected.HandleFunc("POST /v1/drugs", func(w http.ResponseWriter, r *http.Request) {
		handleCreateDrug(deps, w, r)
	})
	protected.HandleFunc("PATCH /v1/drugs/{id}", func(w http.ResponseWriter, r *http.Request) {
		handlePatchDrug(deps, w, r)
	})

	protected.HandleFunc("GET /v1/stock", func(w http.ResponseWriter, r *http.Request) {
		handleListStock(deps, w, r)
	})
	protected.HandleFunc("POST /v1/stock/{drug_id}/adjust", func(w http.ResponseWriter, r *http.Request) {
		handleAdjustStock(deps, w, r)
	})

	protected.HandleFunc("GET /v1/audit", func(w http.ResponseWriter, r *http.Request) {
		handleListAudit(deps, w, r)
	})
	protected.HandleFunc("POST /v1/audit/archive/run", func(w http.ResponseWriter, r *http.Request) {
		handleArchiveRun(deps, w, r)
	})
	protected.HandleFunc("POST /v1/audit/archive/query", func(w http.ResponseWriter, r *http.Request) {
		handleArchiveQuery(deps, cfg.Archive.QueryLimit, w, r)
	})

	protected.HandleFunc("GET /v1/stats", func(w http.ResponseWriter, r *http.Request) {
		handleStats(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusInternalServerError, "auth_misconfigured", "auth middleware is required by configuration")
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for _, pattern := range []string{
		"GET /v1/segments", "POST /v1/segments", "POST /v1/segments/{id}/run",
		"GET /v1/clients", "POST /v1/clients", "GET /v1/clients/{id}", "PATCH /v1/clients/{id}",
		"GET /v1/orders", "POST /v1/orders", "GET /v1/orders/{id}",
		"PATCH /v1/orders/{id}/status", "PATCH /v1/orders/{id}/shipper",
		"GET /v1/shippers", "POST /v1/shippers",
		"GET /v1/drugs", "POST /v1/drugs", "PATCH /v1/drugs/{id}",
		"GET /v1/stock", "POST /v1/stock/{drug_id}/adjust",
		"GET /v1/audit", "POST /v1/audit/archive/run", "POST /v1/audit/archive/query",
		"GET /v1/stats",
	} {
		mux.Handle(pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckStoreDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Store.DSN == "" {
			return errors.New("store dsn is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError emits the {error, message} failure envelope. Internal detail
// stays in the logs; the message is safe for end users.
func writeError(w http.ResponseWriter, status int, errLabel, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errLabel,
		"message": message,
	})
}
