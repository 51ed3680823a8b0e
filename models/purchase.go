package models

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// Per-purchase quantity bounds. The upper bound is client policy; the server
// may still refuse smaller batches for capacity reasons.
const (
	MinQuantity = 1
	MaxQuantity = 10
)

type PurchaseRequest struct {
	EventID  string `json:"evento_id"`
	Quantity int    `json:"cantidad"`
}

func (r PurchaseRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.EventID, validation.Required),
		validation.Field(&r.Quantity, validation.Required, validation.Min(MinQuantity), validation.Max(MaxQuantity)),
	)
}

// PurchaseResult carries the identifiers of the issued batch. Full ticket
// records must be re-read from the ticket listing.
type PurchaseResult struct {
	Message   string     `json:"message,omitempty"`
	TicketIDs []RecordID `json:"ticket_ids"`
}

type Quote struct {
	Event     EventSnapshot
	Quantity  int
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
	Free      bool
}
