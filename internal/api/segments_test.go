package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pharmadesk/pharmadesk/internal/config"
	"github.com/pharmadesk/pharmadesk/internal/ops"
	"github.com/pharmadesk/pharmadesk/internal/segment"
)

func assertCORSHeaders(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "POST, OPTIONS" {
		t.Fatalf("unexpected allow-methods %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "authorization, x-client-info, apikey, content-type" {
		t.Fatalf("unexpected allow-headers %q", got)
	}
}

func TestSegmentQueryPreflight(t *testing.T) {
	handler := newTestHandler(t, nil)

	rec := doJSON(t, handler, http.MethodOptions, "/v1/segments/query", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for preflight, got %d", rec.Code)
	}
	assertCORSHeaders(t, rec)
}

func TestSegmentQueryReturnsEnvelope(t *testing.T) {
	stub := &stubSegments{resp: segment.QueryResponse{
		Message: "Found 1 result",
		Results: []segment.CustomerRow{{
			ClientID:    7,
			FirstName:   "Ada",
			LastName:    "Okafor",
			Email:       "ada@example.com",
			TotalOrders: 4,
			TotalValue:  812.40,
		}},
		QueryID: uuid.NewString(),
	}}
	handler := newTestHandler(t, func(_ *config.Config, deps *Dependencies) {
		deps.Segments = stub
	})

	rec := doJSON(t, handler, http.MethodPost, "/v1/segments/query", `{"query":"customers who spent over $500"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	assertCORSHeaders(t, rec)

	var body struct {
		Message string           `json:"message"`
		Results []map[string]any `json:"results"`
		QueryID string           `json:"queryId"`
	}
	decodeBody(t, rec, &body)
	if body.Message != "Found 1 result" {
		t.Fatalf("unexpected message %q", body.Message)
	}
	if len(body.Results) != 1 {
		t.Fatalf("expected one result, got %d", len(body.Results))
	}
	if _, err := uuid.Parse(body.QueryID); err != nil {
		t.Fatalf("queryId is not a uuid: %v", err)
	}
	if len(stub.got) != 1 || stub.got[0].Query != "customers who spent over $500" {
		t.Fatalf("unexpected requests recorded: %+v", stub.got)
	}
}

func TestSegmentQueryEmptyDatasetStillSucceeds(t *testing.T) {
	handler := newTestHandler(t, func(_ *config.Config, deps *Dependencies) {
		deps.Segments = &stubSegments{resp: segment.QueryResponse{
			Message: "Found 0 results",
			Results: []segment.CustomerRow{},
			QueryID: uuid.NewString(),
		}}
	})

	rec := doJSON(t, handler, http.MethodPost, "/v1/segments/query", `{"query":"VIPs"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]json.RawMessage
	decodeBody(t, rec, &body)
	if string(body["results"]) != "[]" {
		t.Fatalf("expected empty array results, got %s", body["results"])
	}
}

func TestSegmentQueryMalformedJSON(t *testing.T) {
	handler := newTestHandler(t, nil)

	rec := doJSON(t, handler, http.MethodPost, "/v1/segments/query", `{"query": "unterminated`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	assertCORSHeaders(t, rec)
	assertErrorEnvelope(t, rec)
}

func TestSegmentQueryFailureHidesDetail(t *testing.T) {
	handler := newTestHandler(t, func(_ *config.Config, deps *Dependencies) {
		deps.Segments = &stubSegments{err: errors.New(`pq: relation "client" does not exist`)}
	})

	rec := doJSON(t, handler, http.MethodPost, "/v1/segments/query", `{"query":"anything"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	assertCORSHeaders(t, rec)
	envelope := assertErrorEnvelope(t, rec)
	if envelope["message"] == `pq: relation "client" does not exist` {
		t.Fatal("internal error detail leaked to the client")
	}
}

func TestSaveSegmentValidatesInput(t *testing.T) {
	handler := newTestHandler(t, nil)

	rec := doJSON(t, handler, http.MethodPost, "/v1/segments", `{"query":"spenders"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing name, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/v1/segments", `{"name":"vip","query":"spenders","metadata":"not-a-plan"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed metadata, got %d", rec.Code)
	}
}

func TestSaveSegmentPersistsAndReturnsPayload(t *testing.T) {
	var captured ops.CreateSavedSegmentInput
	handler := newTestHandler(t, func(_ *config.Config, deps *Dependencies) {
		deps.Repo = &stubRepo{
			createSegment: func(in ops.CreateSavedSegmentInput) (ops.SavedSegment, error) {
				captured = in
				return ops.SavedSegment{
					SegmentID:            "f0b9c7de-4b88-4a0c-b6de-6df2b8a41ad0",
					Name:                 in.Name,
					NaturalLanguageQuery: in.NaturalLanguageQuery,
					Metadata:             in.Metadata,
					CreatedAt:            time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
				}, nil
			},
		}
	})

	body := `{"name":"big spenders","query":"spent over 500","metadata":{"predicates":[{"field":"total_value","op":"gt","value":500}]}}`
	rec := doJSON(t, handler, http.MethodPost, "/v1/segments", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if captured.Name != "big spenders" {
		t.Fatalf("unexpected captured name %q", captured.Name)
	}
	if captured.Actor != "system" {
		t.Fatalf("expected default actor fallback, got %q", captured.Actor)
	}
	var payload savedSegmentPayload
	decodeBody(t, rec, &payload)
	if payload.ID == "" || payload.Query != "spent over 500" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestRunSegmentReplaysStoredPlan(t *testing.T) {
	metadata := []byte(`{"predicates":[{"field":"total_orders","op":"eq","value":0}],"limit":50}`)
	executed := false
	stub := &stubSegments{resp: segment.QueryResponse{
		Message: "Found 0 results",
		Results: []segment.CustomerRow{},
		QueryID: uuid.NewString(),
	}}
	handler := newTestHandler(t, func(_ *config.Config, deps *Dependencies) {
		deps.Segments = stub
		deps.Repo = &stubRepo{
			getSegment: func(id string) (ops.SavedSegment, error) {
				if id != "f0b9c7de-4b88-4a0c-b6de-6df2b8a41ad0" {
					return ops.SavedSegment{}, ops.ErrNotFound
				}
				return ops.SavedSegment{
					SegmentID:            id,
					Name:                 "never ordered",
					NaturalLanguageQuery: "customers who never ordered",
					Metadata:             metadata,
					CreatedAt:            time.Now(),
				}, nil
			},
			markExecuted: func(string, time.Time) error {
				executed = true
				return nil
			},
		}
	})

	rec := doJSON(t, handler, http.MethodPost, "/v1/segments/f0b9c7de-4b88-4a0c-b6de-6df2b8a41ad0/run", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(stub.got) != 1 {
		t.Fatalf("expected one segment query, got %d", len(stub.got))
	}
	req := stub.got[0]
	if req.Metadata == nil {
		t.Fatal("expected stored plan to be replayed as metadata")
	}
	if len(req.Metadata.Predicates) != 1 || req.Metadata.Predicates[0].Field != segment.FieldTotalOrders {
		t.Fatalf("unexpected replayed plan %+v", req.Metadata)
	}
	if !executed {
		t.Fatal("expected execution timestamp to be recorded")
	}
}

func TestRunSegmentNotFound(t *testing.T) {
	handler := newTestHandler(t, func(_ *config.Config, deps *Dependencies) {
		deps.Repo = &stubRepo{
			getSegment: func(string) (ops.SavedSegment, error) {
				return ops.SavedSegment{}, ops.ErrNotFound
			},
		}
	})

	rec := doJSON(t, handler, http.MethodPost, "/v1/segments/missing/run", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	assertErrorEnvelope(t, rec)
}

func TestListSegments(t *testing.T) {
	executedAt := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	handler := newTestHandler(t, func(_ *config.Config, deps *Dependencies) {
		deps.Repo = &stubRepo{
			listSegments: func() ([]ops.SavedSegment, error) {
				return []ops.SavedSegment{{
					SegmentID:            "a4c135da-79a4-41f2-a6eb-1f8d9f3a60b2",
					Name:                 "lapsed",
					NaturalLanguageQuery: "no orders in 90 days",
					LastExecutedAt:       &executedAt,
				}}, nil
			},
		}
	})

	rec := doJSON(t, handler, http.MethodGet, "/v1/segments", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Segments []savedSegmentPayload `json:"segments"`
	}
	decodeBody(t, rec, &body)
	if len(body.Segments) != 1 || body.Segments[0].Name != "lapsed" {
		t.Fatalf("unexpected segments %+v", body.Segments)
	}
	if body.Segments[0].LastExecutedAt == nil {
		t.Fatal("expected last_executed_at to survive the round trip")
	}
}
