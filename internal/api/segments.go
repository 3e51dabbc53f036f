package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pharmadesk/pharmadesk/internal/auth"
	"github.com/pharmadesk/pharmadesk/internal/observability"
	"github.com/pharmadesk/pharmadesk/internal/ops"
	"github.com/pharmadesk/pharmadesk/internal/segment"
)

// corsHeaders matches what the dashboard frontends send on the
// segmentation endpoint, including supabase-style client headers.
func corsHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
}

func handleSegmentQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	corsHeaders(w)

	var req segment.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	resp, err := deps.Segments.Query(r.Context(), req)
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.Error("segment query failed",
				slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
				slog.String("error", err.Error()))
		}
		writeError(w, http.StatusInternalServerError, "query_failed", "Something went wrong while running your query. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type savedSegmentPayload struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Query          string           `json:"query"`
	Metadata       *json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	LastExecutedAt *time.Time       `json:"last_executed_at,omitempty"`
}

func savedSegmentToPayload(seg ops.SavedSegment) savedSegmentPayload {
	payload := savedSegmentPayload{
		ID:             seg.SegmentID,
		Name:           seg.Name,
		Query:          seg.NaturalLanguageQuery,
		CreatedAt:      seg.CreatedAt,
		LastExecutedAt: seg.LastExecutedAt,
	}
	if len(seg.Metadata) > 0 {
		raw := json.RawMessage(seg.Metadata)
		payload.Metadata = &raw
	}
	return payload
}

func handleListSegments(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	segments, err := deps.Repo.ListSavedSegments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list saved segments")
		return
	}
	payloads := make([]savedSegmentPayload, 0, len(segments))
	for _, seg := range segments {
		payloads = append(payloads, savedSegmentToPayload(seg))
	}
	writeJSON(w, http.StatusOK, map[string]any{"segments": payloads})
}

func handleSaveSegment(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string          `json:"name"`
		Query    string          `json:"query"`
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	if len(req.Metadata) > 0 {
		var plan segment.QueryPlan
		if err := json.Unmarshal(req.Metadata, &plan); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "metadata must be a structured query plan")
			return
		}
	}

	seg, err := deps.Repo.CreateSavedSegment(r.Context(), ops.CreateSavedSegmentInput{
		Name:                 req.Name,
		NaturalLanguageQuery: req.Query,
		Metadata:             req.Metadata,
		Actor:                auth.Actor(r.Context(), deps.DefaultActor),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "save_failed", "failed to save segment")
		return
	}
	writeJSON(w, http.StatusCreated, savedSegmentToPayload(seg))
}

func handleRunSegment(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "segment id is required")
		return
	}
	seg, err := deps.Repo.GetSavedSegment(r.Context(), id)
	if err != nil {
		if errors.Is(err, ops.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "saved segment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "load_failed", "failed to load saved segment")
		return
	}

	req := segment.QueryRequest{Query: seg.NaturalLanguageQuery}
	if len(seg.Metadata) > 0 {
		var plan segment.QueryPlan
		if err := json.Unmarshal(seg.Metadata, &plan); err == nil {
			req.Metadata = &plan
		}
		// A stored plan that no longer parses falls back to
		// re-translating the saved query text.
	}

	resp, err := deps.Segments.Query(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query_failed", "Something went wrong while running your query. Please try again.")
		return
	}
	if err := deps.Repo.MarkSavedSegmentExecuted(r.Context(), seg.SegmentID, time.Now().UTC()); err != nil && deps.Logger != nil {
		deps.Logger.Warn("failed to record segment execution",
			slog.String("segment_id", seg.SegmentID),
			slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, resp)
}
