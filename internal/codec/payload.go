package codec

import (
	"encoding/json"
	"strings"

	"njoy-gate/models"
)

// FallbackPrefix prefixes codes derived for tickets the server sent without
// one. Such codes are a rendering aid only; the server may not know them.
const FallbackPrefix = "NJOY-TICKET-"

// DeriveCode returns the scan code of a ticket, falling back to a code built
// from its identifier when the server left it empty.
func DeriveCode(t models.Ticket) string {
	if code := strings.TrimSpace(t.Code); code != "" {
		return code
	}
	return FallbackPrefix + t.ID.String()
}

// DecodePayload extracts the ticket code from decoded barcode text. Tickets
// issued before the bare-code format carry {"codigo": "..."}; anything else
// is the code itself.
func DecodePayload(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		return text
	}
	var legacy struct {
		Codigo json.RawMessage `json:"codigo"`
	}
	if err := json.Unmarshal([]byte(text), &legacy); err != nil || len(legacy.Codigo) == 0 {
		return text
	}
	var code string
	if err := json.Unmarshal(legacy.Codigo, &code); err == nil {
		if code = strings.TrimSpace(code); code != "" {
			return code
		}
		return text
	}
	// numeric codes from very old tickets
	var n json.Number
	if err := json.Unmarshal(legacy.Codigo, &n); err == nil {
		return n.String()
	}
	return text
}
