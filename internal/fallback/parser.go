package fallback

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Response is the structured payload the model must return.
type Response struct {
	CategorySlug string            `json:"category_slug"`
	Attributes   map[string]string `json:"-"`
	Rationale    string            `json:"rationale"`
	Confidence   float64           `json:"confidence"`
}

// rawResponse tolerates attribute values arriving as any scalar type.
type rawResponse struct {
	CategorySlug string         `json:"category_slug"`
	Attributes   map[string]any `json:"attributes"`
	Rationale    string         `json:"rationale"`
	Confidence   float64        `json:"confidence"`
}

// ParseResponse extracts the structured payload from the completion text.
// It tolerates code fences and surrounding prose, but an unparseable payload
// or a missing category slug is an error. The caller degrades to the
// catch-all category, it never propagates a parse failure upward.
func ParseResponse(content string) (*Response, error) {
	payload := extractJSON(content)
	if payload == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var raw rawResponse
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse response payload: %w", err)
	}

	if raw.CategorySlug == "" {
		return nil, fmt.Errorf("response is missing category_slug")
	}

	resp := &Response{
		CategorySlug: strings.TrimSpace(raw.CategorySlug),
		Rationale:    strings.TrimSpace(raw.Rationale),
		Confidence:   clampUnit(raw.Confidence),
	}

	if len(raw.Attributes) > 0 {
		resp.Attributes = make(map[string]string, len(raw.Attributes))
		for k, v := range raw.Attributes {
			if s := stringifyScalar(v); s != "" {
				resp.Attributes[k] = s
			}
		}
	}

	return resp, nil
}

// extractJSON finds the outermost JSON object, stripping markdown fences and
// any prose around it.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)

	if idx := strings.Index(content, "```"); idx >= 0 {
		rest := content[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			content = rest[:end]
		} else {
			content = rest
		}
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

func stringifyScalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		// Nested objects/arrays are not valid attribute values.
		return ""
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
