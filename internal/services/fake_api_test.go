package services

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"njoy-gate/internal/status"
	"njoy-gate/models"
)

// fakeAPI keeps tickets in memory and consumes them the way the server
// does: at most once per code.
type fakeAPI struct {
	mu      sync.Mutex
	tickets map[string]*models.Ticket
	events  map[string]models.EventSnapshot

	scanDelay time.Duration
	scanErr   error
	listErr   error

	purchaseErr   error
	purchaseCalls atomic.Int32
	scanCalls     atomic.Int32
	release       chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		tickets: map[string]*models.Ticket{
			"NJOY-0001": {ID: "1", Code: "NJOY-0001", Activated: true, AttendeeName: "Laia Puig",
				Event: models.EventSnapshot{Name: "Primavera Nights"}},
		},
		events: map[string]models.EventSnapshot{
			"12": {ID: "12", Name: "Primavera Nights", Price: decimal.NewNullDecimal(decimal.RequireFromString("22.5"))},
			"13": {ID: "13", Name: "Jam gratuita"},
		},
	}
}

func (f *fakeAPI) PurchaseTickets(ctx context.Context, req models.PurchaseRequest) (*models.PurchaseResult, error) {
	f.purchaseCalls.Add(1)
	if f.purchaseErr != nil {
		return nil, f.purchaseErr
	}
	ids := make([]models.RecordID, req.Quantity)
	for i := range ids {
		ids[i] = models.RecordID(req.EventID + "-" + string(rune('a'+i)))
	}
	return &models.PurchaseResult{Message: "ok", TicketIDs: ids}, nil
}

func (f *fakeAPI) MyTickets(ctx context.Context) (models.TicketList, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	list := models.TicketList{}
	for _, t := range f.tickets {
		list = append(list, *t)
	}
	return list, nil
}

func (f *fakeAPI) TicketDetail(ctx context.Context, ticketID string) (*models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tickets {
		if t.ID.String() == ticketID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, &status.RemoteError{StatusCode: http.StatusNotFound, Detail: "Ticket no encontrado"}
}

func (f *fakeAPI) GetEvent(ctx context.Context, eventID string) (*models.EventSnapshot, error) {
	ev, ok := f.events[eventID]
	if !ok {
		return nil, &status.RemoteError{StatusCode: http.StatusNotFound}
	}
	return &ev, nil
}

func (f *fakeAPI) ScannerEvents(ctx context.Context) ([]models.EventSnapshot, error) {
	return nil, nil
}

func (f *fakeAPI) ScanTicket(ctx context.Context, code string) (*models.ScanResponse, error) {
	f.scanCalls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.scanDelay > 0 {
		select {
		case <-time.After(f.scanDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.scanErr != nil {
		return nil, f.scanErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[code]
	if !ok {
		return nil, &status.RemoteError{StatusCode: http.StatusNotFound, Detail: "Ticket no encontrado"}
	}
	if !t.Activated {
		return &models.ScanResponse{Success: false, Message: "Ticket ya utilizado", Code: code}, nil
	}
	t.Activated = false
	return &models.ScanResponse{Success: true, Message: "Acceso permitido", Code: code, Attendee: t.AttendeeName, Event: t.Event.Name}, nil
}

func (f *fakeAPI) activated(code string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickets[code].Activated
}

type fakeCreds struct {
	authenticated bool
	canScan       bool
}

func (c fakeCreds) Authenticated() bool { return c.authenticated }
func (c fakeCreds) CanScan() bool       { return c.canScan }

var staffCreds = fakeCreds{authenticated: true, canScan: true}
