package njoy

import (
	"context"
	"net/http"
	"strings"
	"time"

	"njoy-gate/models"
	"njoy-gate/utils"
)

var _ API = (*njoy)(nil)

type (
	Config struct {
		BaseURL string
		Timeout time.Duration

		// Breaker guards the read endpoints. A nil Breaker gets a default one.
		Breaker *utils.CircuitBreaker
	}

	// TokenSource hands out the bearer credential of the current session.
	TokenSource interface {
		Token() string
	}

	njoy struct {
		baseURL string

		// tokens is read on every call so a logout takes effect immediately.
		tokens TokenSource

		// hc is the http client.
		hc *http.Client

		// breaker wraps GET endpoints only; purchase and scan are never
		// short-circuited or replayed.
		breaker *utils.CircuitBreaker
	}
)

// API is the remote nJoy HTTP API as seen by the gate client.
type API interface {
	PurchaseTickets(ctx context.Context, req models.PurchaseRequest) (*models.PurchaseResult, error)
	MyTickets(ctx context.Context) (models.TicketList, error)
	TicketDetail(ctx context.Context, ticketID string) (*models.Ticket, error)
	GetEvent(ctx context.Context, eventID string) (*models.EventSnapshot, error)
	ScannerEvents(ctx context.Context) ([]models.EventSnapshot, error)
	ScanTicket(ctx context.Context, code string) (*models.ScanResponse, error)
}

// New creates a client for the API at cfg.BaseURL.
func New(cfg Config, tokens TokenSource) API {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = utils.NewCircuitBreaker("njoy-read")
	}
	return &njoy{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		tokens:  tokens,
		hc:      &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

func (n *njoy) PurchaseTickets(ctx context.Context, req models.PurchaseRequest) (*models.PurchaseResult, error) {
	return n.purchase(ctx, req)
}

func (n *njoy) MyTickets(ctx context.Context) (models.TicketList, error) {
	var list models.TicketList
	if err := n.get(ctx, "MyTickets", "/tickets/my-tickets", &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = models.TicketList{}
	}
	return list, nil
}

func (n *njoy) TicketDetail(ctx context.Context, ticketID string) (*models.Ticket, error) {
	var t models.Ticket
	if err := n.get(ctx, "TicketDetail", "/tickets/"+pathEscape(ticketID), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (n *njoy) GetEvent(ctx context.Context, eventID string) (*models.EventSnapshot, error) {
	var ev models.EventSnapshot
	if err := n.get(ctx, "GetEvent", "/evento/"+pathEscape(eventID), &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (n *njoy) ScannerEvents(ctx context.Context) ([]models.EventSnapshot, error) {
	var events []models.EventSnapshot
	if err := n.get(ctx, "ScannerEvents", "/scanner/my-events", &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (n *njoy) ScanTicket(ctx context.Context, code string) (*models.ScanResponse, error) {
	return n.scan(ctx, code)
}
