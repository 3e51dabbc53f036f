package segment

import "context"

// Outcome is the result of intent translation. Exactly one of Plan or
// Clarification is set: a clarification keeps the conversational loop alive
// instead of failing the request.
type Outcome struct {
	Plan          *QueryPlan
	Clarification string
	Suggestions   []string
}

type Translator interface {
	Translate(ctx context.Context, query string) (Outcome, error)
}
