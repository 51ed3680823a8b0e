package models

import "time"

type ScanStatus string

const (
	ScanAccepted    ScanStatus = "accepted"
	ScanAlreadyUsed ScanStatus = "already_used"
	ScanNotFound    ScanStatus = "not_found"
	ScanError       ScanStatus = "error"
)

// TicketSnapshot is the subset of ticket fields shown with a scan result.
type TicketSnapshot struct {
	Code      string `json:"code"`
	Attendee  string `json:"attendee,omitempty"`
	EventName string `json:"event_name,omitempty"`
}

// ScanOutcome is the classified result of one scan attempt.
type ScanOutcome struct {
	Status     ScanStatus      `json:"status"`
	Message    string          `json:"message"`
	Code       string          `json:"code"` // as submitted
	Ticket     *TicketSnapshot `json:"ticket,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

func (o ScanOutcome) Accepted() bool { return o.Status == ScanAccepted }

// ScanResponse is the body of the scan validation endpoint.
type ScanResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Attendee string `json:"attendee,omitempty"`
	Event    string `json:"event,omitempty"`
	Code     string `json:"code,omitempty"`
}

// ScanLogEntry is one line of the gate audit trail.
type ScanLogEntry struct {
	At        time.Time  `json:"at"`
	Code      string     `json:"code"`
	Status    ScanStatus `json:"status"`
	Message   string     `json:"message"`
	EventName string     `json:"event_name,omitempty"`
	Attendee  string     `json:"attendee,omitempty"`
	GateID    string     `json:"gate_id,omitempty"`
}

const scanLogFieldLimit = 120

// NewScanLogEntry builds a log entry from an outcome, truncating the free
// text fields.
func NewScanLogEntry(o ScanOutcome, gateID string) ScanLogEntry {
	e := ScanLogEntry{
		At:      o.ReceivedAt,
		Code:    Truncate(o.Code, scanLogFieldLimit),
		Status:  o.Status,
		Message: Truncate(o.Message, scanLogFieldLimit),
		GateID:  gateID,
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if o.Ticket != nil {
		e.EventName = Truncate(o.Ticket.EventName, scanLogFieldLimit)
		e.Attendee = Truncate(o.Ticket.Attendee, scanLogFieldLimit)
	}
	return e
}

// Truncate cuts s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
