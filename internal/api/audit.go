package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pharmadesk/pharmadesk/internal/archive"
	"github.com/pharmadesk/pharmadesk/internal/observability"
	"github.com/pharmadesk/pharmadesk/internal/ops"
)

type auditPayload struct {
	EntryID   int64            `json:"entry_id"`
	Actor     string           `json:"actor"`
	Action    string           `json:"action"`
	Entity    string           `json:"entity"`
	EntityID  string           `json:"entity_id"`
	Details   *json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

func handleListAudit(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	entries, err := deps.Repo.ListAuditEntries(r.Context(), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list audit entries")
		return
	}
	payloads := make([]auditPayload, 0, len(entries))
	for _, e := range entries {
		payload := auditPayload{
			EntryID:   e.EntryID,
			Actor:     e.Actor,
			Action:    e.Action,
			Entity:    e.Entity,
			EntityID:  e.EntityID,
			CreatedAt: e.CreatedAt,
		}
		if len(e.Details) > 0 {
			raw := json.RawMessage(e.Details)
			payload.Details = &raw
		}
		payloads = append(payloads, payload)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": payloads})
}

func handleArchiveRun(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "archiver_unavailable", "audit archival is not configured")
		return
	}
	summary, err := deps.Archiver.RunOnce(r.Context())
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.Error("archive run failed",
				slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
				slog.String("error", err.Error()))
		}
		writeError(w, http.StatusInternalServerError, "archive_failed", "audit archive run failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// isAllowedSQL gates archive queries to read-only statements. The structured
// plan path never reaches here; this endpoint is an operator escape hatch.
func isAllowedSQL(sql string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(sql))
	return strings.HasPrefix(trimmed, "select") || strings.HasPrefix(trimmed, "with")
}

func handleArchiveQuery(deps Dependencies, queryLimit int, w http.ResponseWriter, r *http.Request) {
	if deps.ArchiveQuery == nil {
		writeError(w, http.StatusServiceUnavailable, "archiver_unavailable", "audit archival is not configured")
		return
	}
	var req struct {
		SQL      string `json:"sql"`
		RowLimit int    `json:"row_limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if req.SQL == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "sql is required")
		return
	}
	if !isAllowedSQL(req.SQL) {
		writeError(w, http.StatusBadRequest, "invalid_request", "only SELECT and WITH statements are allowed")
		return
	}
	rowLimit := req.RowLimit
	if rowLimit <= 0 || rowLimit > queryLimit {
		rowLimit = queryLimit
	}

	result, err := deps.ArchiveQuery.Query(r.Context(), archive.QueryRequest{
		SQL:      req.SQL,
		RowLimit: rowLimit,
	})
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.Error("archive query failed",
				slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
				slog.String("error", err.Error()))
		}
		writeError(w, http.StatusInternalServerError, "archive_query_failed", "audit archive query failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleStats(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	stats, err := deps.Repo.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stats_failed", "failed to load stats")
		return
	}
	observability.SetDashboardStats(stats.Clients, stats.OpenOrders, stats.LowStockDrugs)
	writeJSON(w, http.StatusOK, statsPayload(stats))
}

func statsPayload(s ops.Stats) map[string]any {
	return map[string]any{
		"clients":         s.Clients,
		"open_orders":     s.OpenOrders,
		"low_stock_drugs": s.LowStockDrugs,
		"audit_entries":   s.AuditEntries,
	}
}
