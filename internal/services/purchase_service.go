package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"njoy-gate/internal/services/njoy"
	"njoy-gate/internal/status"
	"njoy-gate/models"
	"njoy-gate/monitoring"
)

const MsgPurchaseFailed = "No se pudo completar la compra. Inténtalo de nuevo."

type PurchaseFlow struct {
	api     njoy.API
	creds   Credentials
	monitor *monitoring.Monitor
}

func NewPurchaseFlow(api njoy.API, creds Credentials, monitor *monitoring.Monitor) *PurchaseFlow {
	return &PurchaseFlow{api: api, creds: creds, monitor: monitor}
}

func (p *PurchaseFlow) validate(eventID string, quantity int) (models.PurchaseRequest, error) {
	req := models.PurchaseRequest{EventID: strings.TrimSpace(eventID), Quantity: quantity}
	if err := req.Validate(); err != nil {
		return req, fmt.Errorf("%w: %w", status.ErrValidation, err)
	}
	return req, nil
}

// Purchase asks the server to issue quantity tickets for eventID. The
// request is sent exactly once. Callers re-read the ticket listing to see
// the issued tickets.
func (p *PurchaseFlow) Purchase(ctx context.Context, eventID string, quantity int) (*models.PurchaseResult, error) {
	if !p.creds.Authenticated() {
		p.monitor.TrackPurchase("unauthenticated")
		return nil, fmt.Errorf("PurchaseFlow.Purchase: %w", status.ErrAuthRequired)
	}
	req, err := p.validate(eventID, quantity)
	if err != nil {
		p.monitor.TrackPurchase("invalid")
		return nil, fmt.Errorf("PurchaseFlow.Purchase: %w", err)
	}

	res, err := p.api.PurchaseTickets(ctx, req)
	if err != nil {
		p.monitor.TrackPurchase(purchaseStatus(err))
		log.WithError(err).WithFields(log.Fields{
			"event_id": req.EventID,
			"quantity": req.Quantity,
		}).Warn("Purchase failed")
		return nil, fmt.Errorf("PurchaseFlow.Purchase: %w", err)
	}

	p.monitor.TrackPurchase("ok")
	log.WithFields(log.Fields{
		"event_id": req.EventID,
		"quantity": req.Quantity,
		"issued":   len(res.TicketIDs),
	}).Info("Tickets issued")
	return res, nil
}

// Quote prices a purchase from the event's current listing.
func (p *PurchaseFlow) Quote(ctx context.Context, eventID string, quantity int) (*models.Quote, error) {
	req, err := p.validate(eventID, quantity)
	if err != nil {
		return nil, fmt.Errorf("PurchaseFlow.Quote: %w", err)
	}
	ev, err := p.api.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("PurchaseFlow.Quote: %w", err)
	}

	q := &models.Quote{Event: *ev, Quantity: req.Quantity, Free: ev.IsFree()}
	if !q.Free {
		q.UnitPrice = ev.Price.Decimal
		q.Total = ev.Price.Decimal.Mul(decimal.NewFromInt(int64(req.Quantity)))
	}
	return q, nil
}

// PurchaseMessage is the text to show for a failed purchase.
func PurchaseMessage(err error) string {
	if errors.Is(err, status.ErrValidation) {
		return fmt.Sprintf("Indica un evento y una cantidad entre %d y %d.", models.MinQuantity, models.MaxQuantity)
	}
	if errors.Is(err, status.ErrAuthRequired) {
		return "Inicia sesión para comprar entradas."
	}
	return status.Message(err, MsgPurchaseFailed)
}

func purchaseStatus(err error) string {
	switch {
	case errors.Is(err, status.ErrTransport):
		return "transport"
	case errors.Is(err, status.ErrAuthRequired), errors.Is(err, status.ErrForbidden):
		return "unauthorized"
	default:
		return "rejected"
	}
}
