package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"njoy-gate/internal/services/njoy"
	"njoy-gate/internal/status"
	"njoy-gate/models"
	"njoy-gate/monitoring"
)

const (
	MsgAccepted       = "Entrada válida. Acceso permitido."
	MsgAlreadyUsed    = "Esta entrada ya ha sido utilizada."
	MsgNotFound       = "Entrada no encontrada."
	MsgUnknownError   = "Error desconocido al validar la entrada."
	MsgEmptyCode      = "No se pudo leer ningún código."
	MsgNoCredential   = "Sesión de escáner no configurada."
	MsgRoleNotAllowed = "Tu cuenta no tiene permisos de escáner."
)

// ScanValidator asks the API to consume a ticket and classifies the answer.
// Validate never fails: every path ends in a ScanOutcome.
type ScanValidator struct {
	api     njoy.API
	creds   Credentials
	monitor *monitoring.Monitor
	now     func() time.Time
}

func NewScanValidator(api njoy.API, creds Credentials, monitor *monitoring.Monitor) *ScanValidator {
	return &ScanValidator{api: api, creds: creds, monitor: monitor, now: time.Now}
}

func (v *ScanValidator) Validate(ctx context.Context, code string) models.ScanOutcome {
	code = strings.TrimSpace(code)
	start := v.now()

	var out models.ScanOutcome
	switch {
	case code == "":
		out = models.ScanOutcome{Status: models.ScanError, Message: MsgEmptyCode}
	case !v.creds.Authenticated():
		out = models.ScanOutcome{Status: models.ScanError, Message: MsgNoCredential}
	case !v.creds.CanScan():
		out = models.ScanOutcome{Status: models.ScanError, Message: MsgRoleNotAllowed}
	default:
		resp, err := v.api.ScanTicket(ctx, code)
		out = classify(code, resp, err)
	}
	out.Code = code
	out.ReceivedAt = v.now()

	v.monitor.TrackScan(string(out.Status), out.ReceivedAt.Sub(start))
	log.WithFields(log.Fields{
		"code":   code,
		"status": out.Status,
	}).Info("Scan validated")
	return out
}

func classify(code string, resp *models.ScanResponse, err error) models.ScanOutcome {
	if err == nil {
		snap := &models.TicketSnapshot{Code: code, Attendee: resp.Attendee, EventName: resp.Event}
		if resp.Code != "" {
			snap.Code = resp.Code
		}
		if resp.Success {
			return models.ScanOutcome{Status: models.ScanAccepted, Message: orDefault(resp.Message, MsgAccepted), Ticket: snap}
		}
		return models.ScanOutcome{Status: models.ScanAlreadyUsed, Message: orDefault(resp.Message, MsgAlreadyUsed), Ticket: snap}
	}

	var re *status.RemoteError
	switch {
	case errors.Is(err, status.ErrNotFound):
		return models.ScanOutcome{Status: models.ScanNotFound, Message: status.Message(err, MsgNotFound)}
	case errors.As(err, &re) && re.StatusCode == http.StatusConflict:
		return models.ScanOutcome{Status: models.ScanAlreadyUsed, Message: status.Message(err, MsgAlreadyUsed)}
	}

	log.WithError(err).WithField("code", code).Warn("Scan validation failed")
	return models.ScanOutcome{Status: models.ScanError, Message: status.Message(err, MsgUnknownError)}
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
