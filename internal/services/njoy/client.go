package njoy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"njoy-gate/internal/status"
	"njoy-gate/models"
)

const maxErrorBody = 64 << 10

// get runs a read call behind the circuit breaker. Only transport failures
// count against the breaker; a 404 means the API is healthy.
func (n *njoy) get(ctx context.Context, op, path string, out interface{}) error {
	var rejected error
	_, err := n.breaker.Execute(ctx, func() (interface{}, error) {
		err := n.do(ctx, op, http.MethodGet, path, nil, nil, out)
		if err != nil && !errors.Is(err, status.ErrTransport) {
			rejected = err
			return nil, nil
		}
		return nil, err
	})
	if rejected != nil {
		return rejected
	}
	if err != nil && !errors.Is(err, status.ErrTransport) {
		return fmt.Errorf("%s: %w: %w", op, status.ErrTransport, err)
	}
	return err
}

// purchase is sent once. No breaker and no retry: a replayed issuance
// request could issue a second batch.
func (n *njoy) purchase(ctx context.Context, req models.PurchaseRequest) (*models.PurchaseResult, error) {
	query := url.Values{}
	query.Set("evento_id", req.EventID)
	query.Set("cantidad", strconv.Itoa(req.Quantity))

	var reply models.PurchaseResult
	if err := n.do(ctx, "PurchaseTickets", http.MethodPost, "/tickets/purchase", query, nil, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (n *njoy) scan(ctx context.Context, code string) (*models.ScanResponse, error) {
	var reply models.ScanResponse
	body := map[string]string{"codigo": code}
	if err := n.do(ctx, "ScanTicket", http.MethodPost, "/scanner/scan-ticket", nil, body, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// do performs one authenticated JSON call. Non-2xx answers come back as a
// wrapped *status.RemoteError; network and decode failures wrap
// status.ErrTransport.
func (n *njoy) do(ctx context.Context, op, method, path string, query url.Values, in, out interface{}) error {
	token := ""
	if n.tokens != nil {
		token = n.tokens.Token()
	}
	if token == "" {
		return fmt.Errorf("%s: %w", op, status.ErrAuthRequired)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: json.Marshal: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	target := n.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s: http.NewRequestWithContext: %w", op, err)
	}
	reqID := uuid.NewString()
	req = setHeaders(req, token, reqID, in != nil)

	logger := log.WithFields(log.Fields{"op": op, "method": method, "path": path, "request_id": reqID})
	start := time.Now()

	resp, err := n.hc.Do(req)
	if err != nil {
		logger.WithError(err).Warn("njoy: request failed")
		return fmt.Errorf("%s: http.Client.Do: %w: %w", op, status.ErrTransport, err)
	}
	defer resp.Body.Close()

	logger = logger.WithFields(log.Fields{"status": resp.StatusCode, "duration": time.Since(start).String()})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rbody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		re := &status.RemoteError{StatusCode: resp.StatusCode, Detail: parseDetail(rbody)}
		logger.WithField("detail", re.Detail).Info("njoy: request rejected")
		return fmt.Errorf("%s: %w", op, re)
	}
	logger.Debug("njoy: request done")

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%s: json.Decode: %w: %w", op, status.ErrTransport, err)
	}
	return nil
}
