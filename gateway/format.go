package gateway

import (
	"encoding/json"
	"fmt"
)

// FormatMessage prepares outbox text for the client. A JSON object with both
// role and content keys is reduced to its content. Anything else is sent
// unchanged.
func FormatMessage(msg string) string {
	var data map[string]any
	if err := json.Unmarshal([]byte(msg), &data); err != nil {
		return msg
	}
	content, hasContent := data["content"]
	if _, hasRole := data["role"]; !hasRole || !hasContent {
		return msg
	}
	switch v := content.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
