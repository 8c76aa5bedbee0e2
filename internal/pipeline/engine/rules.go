package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	api "github.com/tabval/validation-service/api/v1alpha1"
)

// Rule kinds of the closed RuleDefinition variant.
const (
	KindRequired   = "required"
	KindType       = "type"
	KindRange      = "range"
	KindDateRange  = "date_range"
	KindPattern    = "pattern"
	KindCompare    = "compare"
	KindExpression = "expression"
)

// Unique constraint modes.
const (
	UniqueModeIgnore    = "ignore"
	UniqueModeFailAll   = "fail_all"
	UniqueModeKeepFirst = "keep_first"
)

func KnownKind(kind string) bool {
	switch kind {
	case KindRequired, KindType, KindRange, KindDateRange, KindPattern, KindCompare, KindExpression:
		return true
	}
	return false
}

type compiledRule struct {
	def api.RuleDefinition
	run func(ctx context.Context, row RowView, value string) []api.Finding
}

func compile(def api.RuleDefinition) (compiledRule, error) {
	if def.Severity == "" {
		def.Severity = api.SeverityError
	}

	switch def.Kind {
	case KindRequired:
		if def.Column == "" {
			return compiledRule{}, fmt.Errorf("required rule needs a column")
		}
		return compiledRule{def: def, run: compileRequired(def)}, nil

	case KindType:
		if def.Column == "" {
			return compiledRule{}, fmt.Errorf("type rule needs a column")
		}
		if !knownValueType(def.Type) {
			return compiledRule{}, fmt.Errorf("unknown value type %q", def.Type)
		}
		return compiledRule{def: def, run: compileType(def)}, nil

	case KindRange:
		if def.Column == "" {
			return compiledRule{}, fmt.Errorf("range rule needs a column")
		}
		return compileRange(def)

	case KindDateRange:
		if def.Column == "" {
			return compiledRule{}, fmt.Errorf("date_range rule needs a column")
		}
		return compileDateRange(def)

	case KindPattern:
		if def.Column == "" {
			return compiledRule{}, fmt.Errorf("pattern rule needs a column")
		}
		re, err := regexp.Compile(def.Pattern)
		if err != nil {
			return compiledRule{}, fmt.Errorf("invalid pattern: %w", err)
		}
		return compiledRule{def: def, run: compilePattern(def, re)}, nil

	case KindCompare:
		if def.Column == "" || def.OtherColumn == "" {
			return compiledRule{}, fmt.Errorf("compare rule needs column and other_column")
		}
		if !knownOperator(def.Operator) {
			return compiledRule{}, fmt.Errorf("unknown operator %q", def.Operator)
		}
		return compiledRule{def: def, run: compileCompare(def)}, nil

	case KindExpression:
		return compileExpression(def)

	default:
		return compiledRule{}, fmt.Errorf("unknown rule kind %q", def.Kind)
	}
}

func finding(def api.RuleDefinition, row RowView, message string) []api.Finding {
	return []api.Finding{{
		RuleId:   def.Id,
		Severity: def.Severity,
		Message:  message,
		RowIndex: row.Index(),
		Column:   def.Column,
	}}
}

func compileRequired(def api.RuleDefinition) func(context.Context, RowView, string) []api.Finding {
	return func(_ context.Context, row RowView, value string) []api.Finding {
		if strings.TrimSpace(value) == "" {
			return finding(def, row, fmt.Sprintf("%s is required", def.Column))
		}
		return nil
	}
}

func compileType(def api.RuleDefinition) func(context.Context, RowView, string) []api.Finding {
	return func(_ context.Context, row RowView, value string) []api.Finding {
		if strings.TrimSpace(value) == "" {
			return nil
		}
		if err := coerce(def.Type, value); err != nil {
			return finding(def, row, fmt.Sprintf("%s invalid %s", def.Column, def.Type))
		}
		return nil
	}
}

func compileRange(def api.RuleDefinition) (compiledRule, error) {
	var min, max *float64
	if def.Min != nil {
		v, err := coerceFloat(*def.Min)
		if err != nil {
			return compiledRule{}, fmt.Errorf("invalid min %q: %w", *def.Min, err)
		}
		min = &v
	}
	if def.Max != nil {
		v, err := coerceFloat(*def.Max)
		if err != nil {
			return compiledRule{}, fmt.Errorf("invalid max %q: %w", *def.Max, err)
		}
		max = &v
	}
	if min == nil && max == nil {
		return compiledRule{}, fmt.Errorf("range rule needs min or max")
	}

	run := func(_ context.Context, row RowView, value string) []api.Finding {
		if strings.TrimSpace(value) == "" {
			return nil
		}
		v, err := coerceFloat(value)
		if err != nil {
			// Coercion failure is itself a finding, not a fatal error.
			return finding(def, row, fmt.Sprintf("%s is not numeric", def.Column))
		}
		if min != nil && v < *min {
			return finding(def, row, fmt.Sprintf("%s below minimum %v", def.Column, *min))
		}
		if max != nil && v > *max {
			return finding(def, row, fmt.Sprintf("%s above maximum %v", def.Column, *max))
		}
		return nil
	}
	return compiledRule{def: def, run: run}, nil
}

func compileDateRange(def api.RuleDefinition) (compiledRule, error) {
	var min, max *dateValue
	if def.Min != nil {
		v, err := coerceDate(*def.Min)
		if err != nil {
			return compiledRule{}, fmt.Errorf("invalid min %q: %w", *def.Min, err)
		}
		min = &dateValue{v, *def.Min}
	}
	if def.Max != nil {
		v, err := coerceDate(*def.Max)
		if err != nil {
			return compiledRule{}, fmt.Errorf("invalid max %q: %w", *def.Max, err)
		}
		max = &dateValue{v, *def.Max}
	}
	if min == nil && max == nil {
		return compiledRule{}, fmt.Errorf("date_range rule needs min or max")
	}

	run := func(_ context.Context, row RowView, value string) []api.Finding {
		if strings.TrimSpace(value) == "" {
			return nil
		}
		v, err := coerceDate(value)
		if err != nil {
			return finding(def, row, fmt.Sprintf("%s is not a recognized date", def.Column))
		}
		if min != nil && v.Before(min.t) {
			return finding(def, row, fmt.Sprintf("%s before %s", def.Column, min.raw))
		}
		if max != nil && v.After(max.t) {
			return finding(def, row, fmt.Sprintf("%s after %s", def.Column, max.raw))
		}
		return nil
	}
	return compiledRule{def: def, run: run}, nil
}

func compilePattern(def api.RuleDefinition, re *regexp.Regexp) func(context.Context, RowView, string) []api.Finding {
	return func(_ context.Context, row RowView, value string) []api.Finding {
		if strings.TrimSpace(value) == "" {
			return nil
		}
		if !re.MatchString(value) {
			return finding(def, row, fmt.Sprintf("%s does not match pattern", def.Column))
		}
		return nil
	}
}

func knownOperator(op string) bool {
	switch op {
	case "eq", "ne", "lt", "le", "gt", "ge":
		return true
	}
	return false
}

func compileCompare(def api.RuleDefinition) func(context.Context, RowView, string) []api.Finding {
	return func(_ context.Context, row RowView, value string) []api.Finding {
		other, present := row.Lookup(def.OtherColumn)
		if !present {
			return []api.Finding{{
				RuleId:   def.Id,
				Severity: api.SeverityWarning,
				Message:  fmt.Sprintf("column %q not present", def.OtherColumn),
				RowIndex: row.Index(),
				Column:   def.OtherColumn,
			}}
		}
		if strings.TrimSpace(value) == "" || strings.TrimSpace(other) == "" {
			return nil
		}
		if !compareValues(value, other, def.Operator) {
			return finding(def, row, fmt.Sprintf("%s %s %s does not hold", def.Column, def.Operator, def.OtherColumn))
		}
		return nil
	}
}

// compareValues compares numerically when both sides coerce to numbers,
// by timestamp when both coerce to dates, lexically otherwise.
func compareValues(a, b, op string) bool {
	var cmp int
	if fa, errA := coerceFloat(a); errA == nil {
		if fb, errB := coerceFloat(b); errB == nil {
			switch {
			case fa < fb:
				cmp = -1
			case fa > fb:
				cmp = 1
			}
			return holds(cmp, op)
		}
	}
	if ta, errA := coerceDate(a); errA == nil {
		if tb, errB := coerceDate(b); errB == nil {
			switch {
			case ta.Before(tb):
				cmp = -1
			case ta.After(tb):
				cmp = 1
			}
			return holds(cmp, op)
		}
	}
	cmp = strings.Compare(a, b)
	return holds(cmp, op)
}

func holds(cmp int, op string) bool {
	switch op {
	case "eq":
		return cmp == 0
	case "ne":
		return cmp != 0
	case "lt":
		return cmp < 0
	case "le":
		return cmp <= 0
	case "gt":
		return cmp > 0
	case "ge":
		return cmp >= 0
	}
	return false
}
