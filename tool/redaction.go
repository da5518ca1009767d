package tool

import "strings"

// MaskedSecretValue replaces sensitive payload values in history and logs.
const MaskedSecretValue = "**********"

var sensitiveKeyFragments = []string{
	"password",
	"token",
	"secret",
	"api_key",
	"apikey",
	"authorization",
}

// IsSensitiveKey reports whether a payload key names a credential.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	if lower == "" {
		return false
	}
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// MaskSensitivePayload returns a deep copy of payload with credential-like
// keys masked at every nesting level.
func MaskSensitivePayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	masked := make(map[string]any, len(payload))
	for key, value := range payload {
		if IsSensitiveKey(key) && !isEmptyValue(value) {
			masked[key] = MaskedSecretValue
			continue
		}
		masked[key] = maskValue(value)
	}
	return masked
}

func maskValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return MaskSensitivePayload(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = maskValue(item)
		}
		return out
	default:
		return cloneValue(value)
	}
}

func isEmptyValue(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	default:
		return false
	}
}
