// Package logging provides masking helpers so that request/response logging
// never leaks Saby credentials or relay API keys.
package logging

import (
	"encoding/json"
	"fmt"
	"strings"
)

// secretJSONFields are body fields that must never reach a log sink in the
// clear. They cover the Saby authorization wire contract and the relay's own
// key material.
var secretJSONFields = map[string]bool{
	"app_secret": true,
	"secret_key": true,
	"token":      true,
	"sid":        true,
	"api_key":    true,
}

// MaskHeader redacts sensitive header values based on the header name.
//
// Password/secret-bearing headers are fully redacted; token headers keep the
// last four characters so operators can correlate without exposure. All other
// headers pass through unchanged.
func MaskHeader(name, value string) string {
	lower := strings.ToLower(name)

	if strings.Contains(lower, "password") || strings.Contains(lower, "secret") {
		return "[REDACTED]"
	}

	switch lower {
	case "authorization", "x-sbisaccesstoken", "x-api-key":
		if len(value) < 4 {
			return "****"
		}
		return "****" + value[len(value)-4:]
	}

	return value
}

// MaskSecrets redacts the well-known secret fields in a JSON body, at any
// nesting depth. Non-JSON input is returned unchanged.
func MaskSecrets(body []byte) []byte {
	if len(body) == 0 {
		return body
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}

	masked := maskSecretValue(data)

	result, err := json.Marshal(masked)
	if err != nil {
		return body
	}
	return result
}

func maskSecretValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			if secretJSONFields[strings.ToLower(key)] {
				result[key] = "[REDACTED]"
				continue
			}
			result[key] = maskSecretValue(val)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = maskSecretValue(item)
		}
		return result
	default:
		return value
	}
}

// MaskJSONBody redacts non-allowlisted primitive fields in a JSON body. A nil
// allowlist means everything is allowed; parsing failures return the body
// unchanged.
func MaskJSONBody(body []byte, allowlist []string) []byte {
	if allowlist == nil || len(body) == 0 {
		return body
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}

	allowed := make(map[string]bool, len(allowlist))
	for _, field := range allowlist {
		allowed[field] = true
	}

	masked := maskAllowlistValue(data, allowed)

	result, err := json.Marshal(masked)
	if err != nil {
		return body
	}
	return result
}

func maskAllowlistValue(value any, allowed map[string]bool) any {
	switch v := value.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			switch val.(type) {
			case map[string]any, []any:
				result[key] = maskAllowlistValue(val, allowed)
			default:
				if allowed[key] {
					result[key] = val
				} else {
					result[key] = "[REDACTED]"
				}
			}
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = maskAllowlistValue(item, allowed)
		}
		return result
	default:
		return value
	}
}

// FormatBinaryData summarizes non-UTF-8 payloads for logging.
func FormatBinaryData(data []byte) string {
	return fmt.Sprintf("[BINARY: %d bytes]", len(data))
}
