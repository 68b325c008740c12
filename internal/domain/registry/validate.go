package registry

import (
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Datatypes with dedicated checks. Anything else is validated as a string.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeFloat   = "float"
	TypeDate    = "date"
	TypeBoolean = "boolean"
	TypeEmail   = "email"
	TypeRange   = "range"
)

var dateLayouts = []string{"2006-01-02", "2-1-2006"}

// ValidateCDEValue checks value against cde and returns every problem found.
// permitted holds the values of the CDE's permitted value group, if any.
func ValidateCDEValue(cde *CommonDataElement, value interface{}, permitted []PermittedValue) []string {
	items, isList := asList(value)
	if isEmpty(value) {
		if cde.IsRequired {
			return []string{"This field is required"}
		}
		return nil
	}

	var msgs []string
	if isList && !cde.AllowMultiple {
		msgs = append(msgs, "Multiple values are not allowed")
	}
	for _, item := range items {
		msgs = append(msgs, validateItem(cde, item, permitted)...)
	}
	return msgs
}

func validateItem(cde *CommonDataElement, v interface{}, permitted []PermittedValue) []string {
	var msgs []string

	switch normaliseType(cde.Datatype) {
	case TypeInteger:
		n, ok := toFloat(v)
		if !ok || n != math.Trunc(n) {
			return []string{"Value must be an integer"}
		}
		msgs = append(msgs, checkRange(cde, n)...)
	case TypeFloat:
		n, ok := toFloat(v)
		if !ok {
			return []string{"Value must be a number"}
		}
		msgs = append(msgs, checkRange(cde, n)...)
	case TypeDate:
		if _, ok := ParseDate(fmt.Sprint(v)); !ok {
			return []string{"Value must be a date (YYYY-MM-DD or D-M-YYYY)"}
		}
	case TypeBoolean:
		if _, ok := toBool(v); !ok {
			return []string{"Value must be true or false"}
		}
	case TypeEmail:
		s := fmt.Sprint(v)
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s {
			return []string{"Value must be a valid email address"}
		}
		msgs = append(msgs, checkString(cde, s)...)
	case TypeRange:
		// membership is checked below
	default:
		msgs = append(msgs, checkString(cde, fmt.Sprint(v))...)
	}

	// A range element with no permitted values accepts nothing.
	isRange := normaliseType(cde.Datatype) == TypeRange
	if isRange || (cde.PVGroup != nil && *cde.PVGroup != "") {
		code := fmt.Sprint(v)
		found := false
		for _, pv := range permitted {
			if pv.Code == code {
				found = true
				break
			}
		}
		if !found {
			msgs = append(msgs, fmt.Sprintf("%q is not a permitted value", code))
		}
	}
	return msgs
}

func checkString(cde *CommonDataElement, s string) []string {
	var msgs []string
	if cde.MaxLength != nil && len([]rune(s)) > *cde.MaxLength {
		msgs = append(msgs, fmt.Sprintf("Value exceeds maximum length of %d", *cde.MaxLength))
	}
	if cde.Pattern != "" {
		re, err := regexp.Compile(cde.Pattern)
		if err != nil {
			msgs = append(msgs, "Field has an invalid pattern")
		} else if !re.MatchString(s) {
			msgs = append(msgs, fmt.Sprintf("Value does not match pattern %s", cde.Pattern))
		}
	}
	return msgs
}

func checkRange(cde *CommonDataElement, n float64) []string {
	var msgs []string
	if cde.MinValue != nil && n < *cde.MinValue {
		msgs = append(msgs, fmt.Sprintf("Value must be at least %s", formatNumber(*cde.MinValue)))
	}
	if cde.MaxValue != nil && n > *cde.MaxValue {
		msgs = append(msgs, fmt.Sprintf("Value must be at most %s", formatNumber(*cde.MaxValue)))
	}
	return msgs
}

func normaliseType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "integer", "int":
		return TypeInteger
	case "float", "decimal", "number", "numeric":
		return TypeFloat
	case "date":
		return TypeDate
	case "boolean", "bool", "checkbox":
		return TypeBoolean
	case "email":
		return TypeEmail
	case "range":
		return TypeRange
	default:
		return TypeString
	}
}

// ParseDate accepts ISO dates and the day-month-year form used on paper
// registration forms.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func asList(v interface{}) ([]interface{}, bool) {
	switch lv := v.(type) {
	case []interface{}:
		return lv, true
	case []string:
		out := make([]interface{}, len(lv))
		for i, s := range lv {
			out[i] = s
		}
		return out, true
	default:
		return []interface{}{v}, false
	}
}

func isEmpty(v interface{}) bool {
	switch tv := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(tv) == ""
	case []interface{}:
		return len(tv) == 0
	case []string:
		return len(tv) == 0
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, finite(n)
	case float32:
		return float64(n), finite(float64(n))
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && finite(f)
	}
	return 0, false
}

// finite rejects NaN and the infinities, which ParseFloat accepts and which
// compare false against every bound.
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func toBool(v interface{}) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "on", "1":
			return true, true
		case "false", "no", "off", "0":
			return false, true
		}
	}
	return false, false
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
