package validator

import "github.com/go-playground/validator/v10"

func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		_ = v.RegisterValidation(tag, fn)
	}
}

func NewJobValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("file_name", fileNameValidator),
		},
		{
			Rule: registerFn("failure_policy", failurePolicyValidator),
		},
	}
}

func NewRuleSetValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("rule_set_name", nameValidator),
		},
		{
			Rule: registerFn("rule_kind", ruleKindValidator),
		},
		{
			Rule: registerFn("severity", severityValidator),
		},
	}
}
