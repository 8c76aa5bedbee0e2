// Package engine compiles a rule set once per job and evaluates it against
// rows. A compiled Engine is immutable and safe for concurrent read-only
// use by every worker.
package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	api "github.com/tabval/validation-service/api/v1alpha1"
)

// RowView is the row surface the engine needs. Cross-field and expression
// rules receive the full view.
type RowView interface {
	Index() int64
	Lookup(column string) (string, bool)
}

// Engine is a compiled rule set plus the file-level unique-constraint
// configuration.
type Engine struct {
	rules      []compiledRule
	unique     []string
	uniqueMode string
	dups       *DuplicateIndex
}

// Compile builds the engine from rule definitions. The duplicate index may
// be nil when the rule set carries no unique constraints; it must be fully
// built before workers start evaluating.
func Compile(defs []api.RuleDefinition, unique []string, uniqueMode string, dups *DuplicateIndex) (*Engine, error) {
	e := &Engine{
		unique:     lowerAll(unique),
		uniqueMode: strings.ToLower(uniqueMode),
		dups:       dups,
	}

	for _, def := range defs {
		rule, err := compile(def)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", def.Id, err)
		}
		e.rules = append(e.rules, rule)
	}

	zap.S().Named("engine").Debugf("compiled %d rules", len(e.rules))
	return e, nil
}

// Evaluate runs every applicable rule against the row. The second return is
// false when a rule's internal fault prevented the full rule set from
// running; evaluation of the remaining rules still continues.
func (e *Engine) Evaluate(ctx context.Context, row RowView) ([]api.Finding, bool) {
	var findings []api.Finding
	exhaustive := true

	for i := range e.rules {
		found, fault := e.rules[i].safeRun(ctx, row)
		if fault != nil {
			exhaustive = false
			findings = append(findings, *fault)
			continue
		}
		findings = append(findings, found...)
	}

	if f := e.checkUnique(row); f != nil {
		findings = append(findings, *f)
	}

	return findings, exhaustive
}

func (e *Engine) checkUnique(row RowView) *api.Finding {
	if e.dups == nil || len(e.unique) == 0 || e.uniqueMode == "" || e.uniqueMode == UniqueModeIgnore {
		return nil
	}

	count, firstRow := e.dups.Lookup(row)
	if count <= 1 {
		return nil
	}
	if e.uniqueMode == UniqueModeKeepFirst && row.Index() == firstRow {
		return nil
	}

	return &api.Finding{
		RuleId:   "unique",
		Severity: api.SeverityError,
		Message:  fmt.Sprintf("duplicate based on %s", strings.Join(e.unique, ", ")),
		RowIndex: row.Index(),
	}
}

// safeRun resolves the rule's column and runs the rule body. The column
// access stays outside the recovery scope so that a crash in the row
// infrastructure itself propagates to the worker pool's fault handling
// rather than being mistaken for a rule fault.
func (r *compiledRule) safeRun(ctx context.Context, row RowView) ([]api.Finding, *api.Finding) {
	var value string
	if r.def.Column != "" {
		v, present := row.Lookup(r.def.Column)
		if !present {
			// A reference to an absent column warns instead of aborting the row.
			return []api.Finding{{
				RuleId:   r.def.Id,
				Severity: api.SeverityWarning,
				Message:  fmt.Sprintf("column %q not present", r.def.Column),
				RowIndex: row.Index(),
				Column:   r.def.Column,
			}}, nil
		}
		value = v
	}

	return r.runRecovered(ctx, row, value)
}

// runRecovered recovers the rule body's internal fault and converts it into
// a single Error finding tagged as an engine fault, instead of halting the
// row.
func (r *compiledRule) runRecovered(ctx context.Context, row RowView, value string) (findings []api.Finding, fault *api.Finding) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.S().Named("engine").Errorw("rule fault recovered", "rule", r.def.Id, "row", row.Index(), "panic", rec)
			fault = &api.Finding{
				RuleId:   r.def.Id,
				Severity: api.SeverityError,
				Message:  fmt.Sprintf("rule engine fault: %v", rec),
				RowIndex: row.Index(),
				Column:   r.def.Column,
			}
		}
	}()

	return r.run(ctx, row, value), nil
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}
