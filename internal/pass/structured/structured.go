// Package structured parses the minimal one-field JSON answers requested from
// the vision service. Responses are untrusted: anything that is not a JSON
// object carrying a non-empty string under the expected key is rejected.
package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformed    = errors.New("structured response is not a JSON object")
	ErrFieldMissing = errors.New("structured response field missing or empty")
)

// ParseField extracts a single string field from a JSON object answer.
// Markdown code fences around the object are tolerated.
func ParseField(raw, field string) (string, error) {
	body := stripFences(strings.TrimSpace(raw))
	if body == "" {
		return "", ErrMalformed
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	value, ok := obj[field]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrFieldMissing, field)
	}

	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return "", fmt.Errorf("%w: %q is not a string", ErrFieldMissing, field)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: %q", ErrFieldMissing, field)
	}
	return s, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
