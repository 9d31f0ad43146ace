package usecases

import (
	"fmt"
	"regexp"
)

const defaultContactName = "there"

var placeholder = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Interpolate fills {{name}} / {{Name}} with the contact name and {{key}}
// with data[key]. Placeholders without a value are left as written.
func Interpolate(template string, data map[string]any, contactName string) string {
	if contactName == "" {
		contactName = defaultContactName
	}
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		key := m[2 : len(m)-2]
		if key == "name" || key == "Name" {
			return contactName
		}
		if v, ok := data[key]; ok {
			return stringify(v)
		}
		return m
	})
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; whole values print without a fraction
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
	}
	return fmt.Sprint(v)
}
