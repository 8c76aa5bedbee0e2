package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Accepted value types for the type rule kind.
func knownValueType(t string) bool {
	switch t {
	case "int", "float", "decimal", "date", "string":
		return true
	}
	return false
}

// dateLayouts is the documented set of accepted date input formats.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"02-Jan-2006",
}

type dateValue struct {
	t   time.Time
	raw string
}

func coerce(valueType, value string) error {
	switch valueType {
	case "int":
		_, err := coerceInt(value)
		return err
	case "float", "decimal":
		_, err := coerceFloat(value)
		return err
	case "date":
		_, err := coerceDate(value)
		return err
	case "string":
		return nil
	}
	return fmt.Errorf("unknown value type %q", valueType)
}

// coerceInt accepts optional surrounding whitespace and thousands
// separators ("1,024").
func coerceInt(s string) (int64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	return strconv.ParseInt(cleaned, 10, 64)
}

// coerceFloat accepts everything strconv.ParseFloat does, plus thousands
// separators.
func coerceFloat(s string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	return strconv.ParseFloat(cleaned, 64)
}

// coerceDate tries the documented layouts in order.
func coerceDate(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
