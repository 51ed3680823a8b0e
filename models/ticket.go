package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type Ticket struct {
	ID           RecordID      `json:"ticket_id"`
	Code         string        `json:"codigo_ticket"`
	Activated    bool          `json:"activado"` // false once consumed at the gate
	AttendeeName string        `json:"nombre_asistente,omitempty"`
	OwnerName    string        `json:"nombre_usuario,omitempty"`
	Event        EventSnapshot `json:"evento"`
}

// TicketList decodes both shapes the listing endpoint answers with: a bare
// array, or an object wrapping it under "data".
type TicketList []Ticket

func (l *TicketList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var tickets []Ticket
		if err := json.Unmarshal(b, &tickets); err != nil {
			return fmt.Errorf("ticket list: %w", err)
		}
		*l = tickets
		return nil
	}
	var wrapped struct {
		Data []Ticket `json:"data"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return fmt.Errorf("ticket list: %w", err)
	}
	*l = wrapped.Data
	return nil
}
