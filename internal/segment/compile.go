package segment

import (
	"fmt"
	"strings"
	"time"
)

// Aggregate expressions for the fixed customer projection. Predicates are
// evaluated in HAVING because every whitelisted field is an aggregate.
const (
	exprTotalOrders  = "COUNT(o.order_id)"
	exprTotalValue   = "COALESCE(SUM(o.total_value), 0)"
	exprLastPurchase = "MAX(o.placed_at)"
)

var opTemplates = map[Op]string{
	OpGTE: "%s >= $%d",
	OpGT:  "%s > $%d",
	OpLTE: "%s <= $%d",
	OpLT:  "%s < $%d",
	OpEQ:  "%s = $%d",
}

// Compile renders a validated plan into a parameterized SQL statement over
// the customer aggregate. User input never appears in the statement text:
// predicate values are bound as $n parameters and every identifier comes from
// the compile-time whitelist.
func Compile(plan QueryPlan, now time.Time) (string, []any, error) {
	var builder strings.Builder
	builder.WriteString(`
SELECT c.client_id, c.first_name, c.last_name, c.email,
       COUNT(o.order_id) AS total_orders,
       MAX(o.placed_at) AS last_purchase,
       COALESCE(SUM(o.total_value), 0) AS total_value
FROM client AS c
LEFT JOIN client_order AS o
  ON o.client_id = c.client_id AND o.status <> 'cancelled'
GROUP BY c.client_id, c.first_name, c.last_name, c.email`)

	args := make([]any, 0, len(plan.Predicates)+1)
	conditions := make([]string, 0, len(plan.Predicates))

	for _, predicate := range plan.Predicates {
		condition, conditionArgs, err := compilePredicate(predicate, len(args)+1, now)
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, condition)
		args = append(args, conditionArgs...)
	}
	if len(conditions) > 0 {
		builder.WriteString("\nHAVING ")
		builder.WriteString(strings.Join(conditions, "\n   AND "))
	}

	builder.WriteString("\nORDER BY ")
	builder.WriteString(compileSort(plan))
	builder.WriteString(fmt.Sprintf("\nLIMIT $%d", len(args)+1))
	args = append(args, plan.Limit)

	return builder.String(), args, nil
}

func compilePredicate(predicate Predicate, nextParam int, now time.Time) (string, []any, error) {
	switch predicate.Field {
	case FieldTotalOrders, FieldTotalValue:
		expr := exprTotalValue
		var value any = predicate.Value
		if predicate.Field == FieldTotalOrders {
			expr = exprTotalOrders
			value = int64(predicate.Value)
		}
		if predicate.Op == OpBetween {
			var upper any = predicate.Upper
			if predicate.Field == FieldTotalOrders {
				upper = int64(predicate.Upper)
			}
			return fmt.Sprintf("%s BETWEEN $%d AND $%d", expr, nextParam, nextParam+1),
				[]any{value, upper}, nil
		}
		template, ok := opTemplates[predicate.Op]
		if !ok {
			return "", nil, &ValidationError{Reason: fmt.Sprintf("op %q is not valid for field %q", predicate.Op, predicate.Field)}
		}
		return fmt.Sprintf(template, expr, nextParam), []any{value}, nil

	case FieldLastPurchase:
		cutoff := now.UTC().AddDate(0, 0, -predicate.Days)
		switch predicate.Op {
		case OpOlderThan:
			// Customers who never ordered count as inactive too.
			return fmt.Sprintf("(%s IS NULL OR %s < $%d)", exprLastPurchase, exprLastPurchase, nextParam),
				[]any{cutoff}, nil
		case OpNewerThan:
			return fmt.Sprintf("%s >= $%d", exprLastPurchase, nextParam), []any{cutoff}, nil
		}
		return "", nil, &ValidationError{Reason: fmt.Sprintf("op %q is not valid for field %q", predicate.Op, predicate.Field)}
	}
	return "", nil, &ValidationError{Reason: fmt.Sprintf("unknown field %q", predicate.Field)}
}

func compileSort(plan QueryPlan) string {
	direction := "ASC"
	if plan.SortDesc {
		direction = "DESC"
	}
	switch plan.SortBy {
	case FieldTotalOrders:
		return "total_orders " + direction + ", c.client_id ASC"
	case FieldTotalValue:
		return "total_value " + direction + ", c.client_id ASC"
	case FieldLastPurchase:
		// NULLS LAST keeps never-ordered clients at the tail for both
		// directions.
		return "last_purchase " + direction + " NULLS LAST, c.client_id ASC"
	}
	return "c.last_name ASC, c.first_name ASC, c.client_id ASC"
}
