package generator

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/hyperifyio/postforge/internal/apperr"
)

// extractJSON strips code fences and any narrative around the JSON payload in
// raw. Every '[' or '{' is tried as a start; the first complete value that is
// an object or an array of objects wins, so bracketed asides such as "[2]" in
// the surrounding text are skipped.
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	var fallback string
	found := false
	for i := 0; i < len(s); i++ {
		if s[i] != '[' && s[i] != '{' {
			continue
		}
		found = true
		var msg json.RawMessage
		if err := json.NewDecoder(strings.NewReader(s[i:])).Decode(&msg); err != nil {
			continue
		}
		if isPayload(msg) {
			return string(msg), nil
		}
		if fallback == "" {
			fallback = string(msg)
		}
	}
	switch {
	case fallback != "":
		return fallback, nil
	case found:
		return "", apperr.E(apperr.ResponseParseError, "unterminated JSON in model output")
	}
	return "", apperr.E(apperr.ResponseParseError, "no JSON found in model output")
}

// isPayload reports whether msg is an object or an array holding objects.
func isPayload(msg json.RawMessage) bool {
	if msg[0] == '{' {
		return true
	}
	inner := bytes.TrimSpace(msg[1:])
	return len(inner) > 0 && inner[0] == '{'
}

// decodeItems decodes model output into a list of items of type T. It
// accepts a bare array, an object wrapping the array under "posts", or a
// single object.
func decodeItems[T any](raw string) ([]T, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	data := []byte(payload)
	if bytes.HasPrefix(data, []byte("[")) {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, apperr.Wrap(apperr.ResponseParseError, err, "decode post array")
		}
		return items, nil
	}
	var wrapper struct {
		Posts []T `json:"posts"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && len(wrapper.Posts) > 0 {
		return wrapper.Posts, nil
	}
	var single T
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, apperr.Wrap(apperr.ResponseParseError, err, "decode post object")
	}
	return []T{single}, nil
}

// stringList accepts a JSON array of strings, a single delimited string, or
// null. Models are inconsistent about which they emit for tag fields.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if b[0] == '[' {
		var items []any
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		out := make([]string, 0, len(items))
		for _, it := range items {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
		*l = out
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*l = strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\n' })
	return nil
}
