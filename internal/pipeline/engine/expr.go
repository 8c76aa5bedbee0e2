package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	api "github.com/tabval/validation-service/api/v1alpha1"
)

// Custom expression rules are rego modules evaluated in a sandboxed,
// side-effect-free prepared query. The module must declare
// `package validation.custom` and populate a `deny` set with violation
// messages; the row is handed to it as input, cells keyed by column name.
const expressionQuery = "data.validation.custom.deny"

func compileExpression(def api.RuleDefinition) (compiledRule, error) {
	if def.Expression == "" {
		return compiledRule{}, fmt.Errorf("expression rule needs an expression body")
	}

	filename := fmt.Sprintf("rule_%s.rego", def.Id)
	module, err := ast.ParseModuleWithOpts(filename, def.Expression, ast.ParserOptions{
		RegoVersion: ast.RegoV1,
	})
	if err != nil {
		return compiledRule{}, fmt.Errorf("parsing expression: %w", err)
	}

	compiler := ast.NewCompiler()
	compiler.Compile(map[string]*ast.Module{filename: module})
	if compiler.Failed() {
		return compiledRule{}, fmt.Errorf("compiling expression: %v", compiler.Errors)
	}

	preparedQuery, err := rego.New(
		rego.Query(expressionQuery),
		rego.Compiler(compiler),
		rego.SetRegoVersion(ast.RegoV1),
		rego.StrictBuiltinErrors(true),
	).PrepareForEval(context.Background())
	if err != nil {
		return compiledRule{}, fmt.Errorf("preparing expression query: %w", err)
	}

	run := func(ctx context.Context, row RowView, _ string) []api.Finding {
		input := expressionInput(row)
		resultSet, err := preparedQuery.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			// Treated as a rule fault: recovered by the caller's panic guard.
			panic(fmt.Sprintf("expression evaluation: %v", err))
		}

		var findings []api.Finding
		for _, result := range resultSet {
			for _, expr := range result.Expressions {
				values, ok := expr.Value.([]interface{})
				if !ok {
					continue
				}
				for _, v := range values {
					findings = append(findings, api.Finding{
						RuleId:   def.Id,
						Severity: def.Severity,
						Message:  fmt.Sprintf("%v", v),
						RowIndex: row.Index(),
						Column:   def.Column,
					})
				}
			}
		}
		return findings
	}

	return compiledRule{def: def, run: run}, nil
}

// expressionInput builds the rego input document from the row. Expression
// rules receive the full row view.
func expressionInput(row RowView) map[string]interface{} {
	input := map[string]interface{}{
		"row_index": row.Index(),
	}
	cells := map[string]interface{}{}
	if columns, ok := row.(interface{ ColumnNames() []string }); ok {
		for _, c := range columns.ColumnNames() {
			if v, present := row.Lookup(c); present {
				cells[c] = v
			}
		}
	}
	input["cells"] = cells
	return input
}
