package services

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"njoy-gate/internal/services/njoy"
	"njoy-gate/internal/status"
	"njoy-gate/models"
)

// Credentials is what the services need from the auth collaborator.
type Credentials interface {
	Authenticated() bool
	CanScan() bool
}

// TicketStore reads the current user's tickets. Nothing is cached; every
// call goes to the API.
type TicketStore struct {
	api   njoy.API
	creds Credentials
}

func NewTicketStore(api njoy.API, creds Credentials) *TicketStore {
	return &TicketStore{api: api, creds: creds}
}

// List returns the user's tickets. A failed call returns an error, never an
// empty list.
func (s *TicketStore) List(ctx context.Context) ([]models.Ticket, error) {
	if !s.creds.Authenticated() {
		return nil, fmt.Errorf("TicketStore.List: %w", status.ErrAuthRequired)
	}
	list, err := s.api.MyTickets(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to list tickets")
		return nil, fmt.Errorf("TicketStore.List: %w", err)
	}
	return list, nil
}

func (s *TicketStore) Get(ctx context.Context, ticketID string) (*models.Ticket, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return nil, fmt.Errorf("TicketStore.Get: empty ticket id: %w", status.ErrValidation)
	}
	if !s.creds.Authenticated() {
		return nil, fmt.Errorf("TicketStore.Get: %w", status.ErrAuthRequired)
	}
	t, err := s.api.TicketDetail(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("TicketStore.Get: %w", err)
	}
	return t, nil
}

// Find looks a ticket up by id or by code in the user's listing.
func (s *TicketStore) Find(ctx context.Context, ref string) (*models.Ticket, error) {
	ref = strings.TrimSpace(ref)
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID.String() == ref || list[i].Code == ref {
			return &list[i], nil
		}
	}
	return nil, fmt.Errorf("TicketStore.Find: %q: %w", ref, status.ErrNotFound)
}
