package segment

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// RuleTranslator maps common segmentation phrasings onto plan predicates with
// keyword patterns. It never touches the network and is the default
// translator.
type RuleTranslator struct {
	limits Limits
}

func NewRuleTranslator(limits Limits) *RuleTranslator {
	return &RuleTranslator{limits: limits.withDefaults()}
}

var (
	spentAbovePattern = regexp.MustCompile(`(?:spent|spend|spending|purchased?|bought)\b[^.]*?(?:over|more than|above|at least|exceeding)\s*\$?\s*([\d,]+(?:\.\d+)?)`)
	spentBelowPattern = regexp.MustCompile(`(?:spent|spend|spending)\b[^.]*?(?:under|less than|below|at most)\s*\$?\s*([\d,]+(?:\.\d+)?)`)
	ordersAtLeast     = regexp.MustCompile(`(?:at least|minimum of)\s+(\d+)\s+orders?`)
	ordersMoreThan    = regexp.MustCompile(`(?:more than|over)\s+(\d+)\s+orders?`)
	ordersFewerThan   = regexp.MustCompile(`(?:fewer than|less than|under)\s+(\d+)\s+orders?`)
	topSpenders       = regexp.MustCompile(`top\s+(\d+)?\s*(?:spenders|customers|clients|buyers)`)
	withinDays        = regexp.MustCompile(`(?:last|past|within(?: the)?(?: last)?)\s+(\d+)\s+(day|week|month)s?`)
	inactiveFor       = regexp.MustCompile(`(?:not?\s+(?:purchased|ordered|bought)|inactive|dormant|lapsed|haven't\s+(?:purchased|ordered|bought))[^.]*?(\d+)\s+(day|week|month)s?`)
)

func (t *RuleTranslator) Translate(_ context.Context, query string) (Outcome, error) {
	lowered := strings.ToLower(strings.TrimSpace(query))
	if lowered == "" {
		return clarification(), nil
	}

	var plan QueryPlan
	matched := false

	if m := spentAbovePattern.FindStringSubmatch(lowered); m != nil {
		if value, ok := parseAmount(m[1]); ok {
			op := OpGT
			if strings.Contains(m[0], "at least") {
				op = OpGTE
			}
			plan.Predicates = append(plan.Predicates, Predicate{Field: FieldTotalValue, Op: op, Value: value})
			matched = true
		}
	}
	if m := spentBelowPattern.FindStringSubmatch(lowered); m != nil {
		if value, ok := parseAmount(m[1]); ok {
			op := OpLT
			if strings.Contains(m[0], "at most") {
				op = OpLTE
			}
			plan.Predicates = append(plan.Predicates, Predicate{Field: FieldTotalValue, Op: op, Value: value})
			matched = true
		}
	}

	if m := ordersAtLeast.FindStringSubmatch(lowered); m != nil {
		if count, err := strconv.Atoi(m[1]); err == nil {
			plan.Predicates = append(plan.Predicates, Predicate{Field: FieldTotalOrders, Op: OpGTE, Value: float64(count)})
			matched = true
		}
	} else if m := ordersMoreThan.FindStringSubmatch(lowered); m != nil {
		if count, err := strconv.Atoi(m[1]); err == nil {
			plan.Predicates = append(plan.Predicates, Predicate{Field: FieldTotalOrders, Op: OpGT, Value: float64(count)})
			matched = true
		}
	} else if m := ordersFewerThan.FindStringSubmatch(lowered); m != nil {
		if count, err := strconv.Atoi(m[1]); err == nil {
			plan.Predicates = append(plan.Predicates, Predicate{Field: FieldTotalOrders, Op: OpLT, Value: float64(count)})
			matched = true
		}
	}

	if strings.Contains(lowered, "never ordered") || strings.Contains(lowered, "no orders") ||
		strings.Contains(lowered, "never purchased") || strings.Contains(lowered, "without any orders") {
		plan.Predicates = append(plan.Predicates, Predicate{Field: FieldTotalOrders, Op: OpEQ, Value: 0})
		matched = true
	}

	if m := inactiveFor.FindStringSubmatch(lowered); m != nil {
		if days, ok := parseWindow(m[1], m[2]); ok {
			plan.Predicates = append(plan.Predicates, Predicate{Field: FieldLastPurchase, Op: OpOlderThan, Days: days})
			matched = true
		}
	} else if strings.Contains(lowered, "inactive") || strings.Contains(lowered, "dormant") || strings.Contains(lowered, "lapsed") {
		plan.Predicates = append(plan.Predicates, Predicate{Field: FieldLastPurchase, Op: OpOlderThan, Days: 90})
		matched = true
	} else if m := withinDays.FindStringSubmatch(lowered); m != nil {
		if days, ok := parseWindow(m[1], m[2]); ok {
			plan.Predicates = append(plan.Predicates, Predicate{Field: FieldLastPurchase, Op: OpNewerThan, Days: days})
			matched = true
		}
	} else if strings.Contains(lowered, "last month") || strings.Contains(lowered, "past month") {
		plan.Predicates = append(plan.Predicates, Predicate{Field: FieldLastPurchase, Op: OpNewerThan, Days: 30})
		matched = true
	} else if strings.Contains(lowered, "last week") || strings.Contains(lowered, "past week") {
		plan.Predicates = append(plan.Predicates, Predicate{Field: FieldLastPurchase, Op: OpNewerThan, Days: 7})
		matched = true
	}

	if m := topSpenders.FindStringSubmatch(lowered); m != nil {
		plan.SortBy = FieldTotalValue
		plan.SortDesc = true
		if m[1] != "" {
			if count, err := strconv.Atoi(m[1]); err == nil && count > 0 {
				plan.Limit = count
			}
		}
		matched = true
	}

	if !matched {
		return clarification(), nil
	}

	validated, err := Validate(plan, t.limits)
	if err != nil {
		return clarification(), nil
	}
	return Outcome{Plan: &validated}, nil
}

func clarification() Outcome {
	return Outcome{
		Clarification: "I couldn't work out which customers you mean. Try describing them by spend, order count or recency.",
		Suggestions: []string{
			"customers who spent over $500",
			"clients with at least 3 orders",
			"customers who haven't purchased in 6 months",
			"top 20 spenders",
		},
	}
}

func parseAmount(raw string) (float64, bool) {
	cleaned := strings.ReplaceAll(raw, ",", "")
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}

func parseWindow(rawCount, unit string) (int, bool) {
	count, err := strconv.Atoi(rawCount)
	if err != nil || count <= 0 {
		return 0, false
	}
	switch unit {
	case "day":
		return count, true
	case "week":
		return count * 7, true
	case "month":
		return count * 30, true
	}
	return 0, false
}
