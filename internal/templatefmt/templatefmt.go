package templatefmt

import (
	"encoding/json"
	"math"
	"strconv"
	"text/template"
)

// FuncMap returns shared notification template helpers.
// Params: none.
// Returns: deterministic helper map used by config validation and runtime rendering.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"json":    MarshalJSON,
		"value":   Value,
		"percent": Percent,
	}
}

// ParseNotificationTemplate parses one notification template with shared helpers.
// Params: template name and body.
// Returns: compiled template or parse error.
func ParseNotificationTemplate(name, body string) (*template.Template, error) {
	return template.New(name).Funcs(FuncMap()).Option("missingkey=error").Parse(body)
}

// Value renders optional numbers; nil pointers become "?".
// Params: template value (int, float64 or pointers to them).
// Returns: printable string.
func Value(value any) string {
	switch typed := value.(type) {
	case int:
		return strconv.Itoa(typed)
	case *int:
		if typed == nil {
			return "?"
		}
		return strconv.Itoa(*typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case *float64:
		if typed == nil {
			return "?"
		}
		return strconv.FormatFloat(*typed, 'f', -1, 64)
	case string:
		return typed
	default:
		return "?"
	}
}

// Percent renders a quality value rounded to a whole number.
// Params: float64 or *float64.
// Returns: rounded integer string or "?" when absent.
func Percent(value any) string {
	switch typed := value.(type) {
	case float64:
		return strconv.Itoa(int(math.Round(typed)))
	case *float64:
		if typed == nil {
			return "?"
		}
		return strconv.Itoa(int(math.Round(*typed)))
	default:
		return "?"
	}
}

// MarshalJSON renders value into JSON string for template embedding.
// Params: template value of any type.
// Returns: marshaled JSON string or "null" on marshal failure.
func MarshalJSON(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(encoded)
}
