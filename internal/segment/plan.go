package segment

import (
	"fmt"
)

// Field names a column of the customer aggregate a plan predicate may target.
type Field string

const (
	FieldTotalOrders  Field = "total_orders"
	FieldTotalValue   Field = "total_value"
	FieldLastPurchase Field = "last_purchase"
)

type Op string

const (
	OpGTE     Op = "gte"
	OpGT      Op = "gt"
	OpLTE     Op = "lte"
	OpLT      Op = "lt"
	OpEQ      Op = "eq"
	OpBetween Op = "between"
	// Last-purchase recency ops. Days holds the window size.
	OpOlderThan Op = "older_than"
	OpNewerThan Op = "newer_than"
)

// Predicate is one whitelisted condition over the customer aggregate. The
// compiler only ever binds Value/Upper/Days as query parameters; no free text
// from a predicate reaches SQL.
type Predicate struct {
	Field Field   `json:"field"`
	Op    Op      `json:"op"`
	Value float64 `json:"value,omitempty"`
	Upper float64 `json:"upper,omitempty"`
	Days  int     `json:"days,omitempty"`
}

// QueryPlan is the structured output of intent translation and the only input
// the compiler accepts. It is JSON-serializable so saved segments can replay
// it without re-translating.
type QueryPlan struct {
	Predicates []Predicate `json:"predicates,omitempty"`
	SortBy     Field       `json:"sort_by,omitempty"`
	SortDesc   bool        `json:"sort_desc,omitempty"`
	Limit      int         `json:"limit,omitempty"`
}

// Limits bounds plan size independent of where the plan came from.
type Limits struct {
	DefaultLimit int
	MaxLimit     int
}

func (l Limits) withDefaults() Limits {
	if l.DefaultLimit <= 0 {
		l.DefaultLimit = 100
	}
	if l.MaxLimit <= 0 {
		l.MaxLimit = 500
	}
	return l
}

// ValidationError marks a plan that failed whitelist validation. It is a
// caller error, not an execution failure.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid query plan: " + e.Reason
}

var numericOps = map[Op]bool{
	OpGTE: true, OpGT: true, OpLTE: true, OpLT: true, OpEQ: true, OpBetween: true,
}

var recencyOps = map[Op]bool{
	OpOlderThan: true, OpNewerThan: true,
}

var sortFields = map[Field]bool{
	FieldTotalOrders: true, FieldTotalValue: true, FieldLastPurchase: true,
}

// Validate checks every predicate and the sort/limit against the whitelist
// and clamps the limit into [1, MaxLimit]. The returned plan is the one to
// compile.
func Validate(plan QueryPlan, limits Limits) (QueryPlan, error) {
	limits = limits.withDefaults()

	if len(plan.Predicates) > 8 {
		return QueryPlan{}, &ValidationError{Reason: "too many predicates"}
	}
	for _, predicate := range plan.Predicates {
		switch predicate.Field {
		case FieldTotalOrders, FieldTotalValue:
			if !numericOps[predicate.Op] {
				return QueryPlan{}, &ValidationError{Reason: fmt.Sprintf("op %q is not valid for field %q", predicate.Op, predicate.Field)}
			}
			if predicate.Value < 0 {
				return QueryPlan{}, &ValidationError{Reason: fmt.Sprintf("field %q requires a non-negative value", predicate.Field)}
			}
			if predicate.Op == OpBetween && predicate.Upper < predicate.Value {
				return QueryPlan{}, &ValidationError{Reason: "between upper bound is below lower bound"}
			}
		case FieldLastPurchase:
			if !recencyOps[predicate.Op] {
				return QueryPlan{}, &ValidationError{Reason: fmt.Sprintf("op %q is not valid for field %q", predicate.Op, predicate.Field)}
			}
			if predicate.Days <= 0 {
				return QueryPlan{}, &ValidationError{Reason: "recency predicate requires days > 0"}
			}
		default:
			return QueryPlan{}, &ValidationError{Reason: fmt.Sprintf("unknown field %q", predicate.Field)}
		}
	}

	if plan.SortBy != "" && !sortFields[plan.SortBy] {
		return QueryPlan{}, &ValidationError{Reason: fmt.Sprintf("unknown sort field %q", plan.SortBy)}
	}

	if plan.Limit <= 0 {
		plan.Limit = limits.DefaultLimit
	}
	if plan.Limit > limits.MaxLimit {
		plan.Limit = limits.MaxLimit
	}
	return plan, nil
}
