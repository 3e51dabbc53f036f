package segment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pharmadesk/pharmadesk/internal/observability"
)

// Runner executes a validated plan. Implemented by Executor; narrowed to an
// interface so the service can be tested without a database.
type Runner interface {
	Run(ctx context.Context, plan QueryPlan) ([]CustomerRow, error)
}

type QueryRequest struct {
	Query    string     `json:"query"`
	Metadata *QueryPlan `json:"metadata,omitempty"`
}

// QueryResponse is the wire envelope for a segmentation query. Results is
// always present, even when empty or on clarification.
type QueryResponse struct {
	Message string        `json:"message"`
	Results []CustomerRow `json:"results"`
	QueryID string        `json:"queryId"`

	// Plan is the executed plan, kept off the wire so callers can persist it
	// as saved-segment metadata.
	Plan *QueryPlan `json:"-"`
}

type Service struct {
	logger     *slog.Logger
	translator Translator
	runner     Runner
	limits     Limits
}

func NewService(logger *slog.Logger, translator Translator, runner Runner, limits Limits) *Service {
	return &Service{
		logger:     logger,
		translator: translator,
		runner:     runner,
		limits:     limits.withDefaults(),
	}
}

// Query resolves a natural-language request (or a replayed plan) into
// normalized customer rows. Unclear intent and empty queries come back as
// HTTP-200 clarifications; only execution faults surface as errors.
func (s *Service) Query(ctx context.Context, req QueryRequest) (QueryResponse, error) {
	started := time.Now()
	queryID := uuid.NewString()

	var plan QueryPlan
	switch {
	case req.Metadata != nil:
		validated, err := Validate(*req.Metadata, s.limits)
		if err != nil {
			observability.IncrementSegmentClarification()
			observability.ObserveSegmentQuery("clarification", -1, time.Since(started))
			return clarificationResponse(queryID, clarification()), nil
		}
		plan = validated

	case strings.TrimSpace(req.Query) == "":
		observability.IncrementSegmentClarification()
		observability.ObserveSegmentQuery("clarification", -1, time.Since(started))
		return QueryResponse{
			Message: "Please describe the customers you're looking for, e.g. \"customers who spent over $500\".",
			Results: []CustomerRow{},
			QueryID: queryID,
		}, nil

	default:
		outcome, err := s.translator.Translate(ctx, req.Query)
		if err != nil {
			observability.ObserveSegmentQuery("error", -1, time.Since(started))
			s.logger.ErrorContext(ctx, "segment translation failed",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.String("error", err.Error()),
			)
			return QueryResponse{}, fmt.Errorf("translate segment query: %w", err)
		}
		if outcome.Plan == nil {
			observability.IncrementSegmentClarification()
			observability.ObserveSegmentQuery("clarification", -1, time.Since(started))
			return clarificationResponse(queryID, outcome), nil
		}
		plan = *outcome.Plan
	}

	results, err := s.runner.Run(ctx, plan)
	if err != nil {
		observability.ObserveSegmentQuery("error", -1, time.Since(started))
		s.logger.ErrorContext(ctx, "segment execution failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("error", err.Error()),
		)
		return QueryResponse{}, err
	}

	observability.ObserveSegmentQuery("ok", len(results), time.Since(started))
	return QueryResponse{
		Message: resultMessage(len(results)),
		Results: results,
		QueryID: queryID,
		Plan:    &plan,
	}, nil
}

func clarificationResponse(queryID string, outcome Outcome) QueryResponse {
	message := outcome.Clarification
	if len(outcome.Suggestions) > 0 {
		message += " For example: " + strings.Join(outcome.Suggestions, "; ") + "."
	}
	return QueryResponse{
		Message: message,
		Results: []CustomerRow{},
		QueryID: queryID,
	}
}

func resultMessage(count int) string {
	if count == 1 {
		return "Found 1 result"
	}
	return fmt.Sprintf("Found %d results", count)
}
