package validator

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	api "github.com/tabval/validation-service/api/v1alpha1"
	"github.com/tabval/validation-service/internal/pipeline/engine"
)

var (
	ruleSetNameValidRegex = regexp.MustCompile("^[a-zA-Z0-9+-_.]+$")
	fileNameValidRegex    = regexp.MustCompile(`^[^/\\]+\.(csv|xlsx|xlsm)$`)
)

func nameValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	return ruleSetNameValidRegex.MatchString(val)
}

func fileNameValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	return fileNameValidRegex.MatchString(strings.ToLower(val))
}

func failurePolicyValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(api.FailurePolicy)
	if !ok {
		return false
	}

	switch val {
	case api.FailurePolicyStrict, api.FailurePolicyBestEffort:
		return true
	}
	return false
}

func ruleKindValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	return engine.KnownKind(val)
}

func severityValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(api.Severity)
	if !ok {
		return false
	}

	switch val {
	case api.SeverityError, api.SeverityWarning, api.SeverityInfo:
		return true
	}
	return false
}
