package postgres

import (
	"encoding/json"
	"fmt"
	"strings"
)

// placeholder returns a numbered placeholder for PostgreSQL ($1, $2, ...)
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns n numbered placeholders for PostgreSQL
func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}

// marshalJSON serializes v for a TEXT json column, falling back to the
// given default on a nil value.
func marshalJSON(v any, fallback string) string {
	if v == nil {
		return fallback
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return fallback
	}
	return string(buf)
}
