package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"njoy-gate/config"
	"njoy-gate/internal/status"
	"njoy-gate/models"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func setupTestAPI(t *testing.T, mux *http.ServeMux) string {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func setupTestRoot(t *testing.T, apiURL string, in io.Reader, out io.Writer, args ...string) *cobra.Command {
	t.Helper()
	color.NoColor = true
	t.Setenv("NJOY_API_URL", apiURL)
	t.Setenv("NJOY_ACCESS_TOKEN", "opaque-token")
	t.Setenv("NJOY_INTERACTIVE", "false")
	t.Setenv("NJOY_LOG_LEVEL", "error")

	root := newRootCmd()
	root.SetOut(out)
	root.SetErr(out)
	root.SetIn(in)
	root.SetArgs(args)
	return root
}

func runRoot(t *testing.T, apiURL string, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := setupTestRoot(t, apiURL, strings.NewReader(stdin), &out, args...).ExecuteContext(context.Background())
	return out.String(), err
}

// lockedBuffer is written to by the overlay timer and the session goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func ticketsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": []map[string]interface{}{
			{"ticket_id": 1, "codigo_ticket": "NJOY-0001", "activado": true, "evento": map[string]interface{}{"nombre": "Primavera Nights", "fechayhora": "2025-06-14T21:30:00"}},
			{"ticket_id": 2, "activado": false, "evento": map[string]interface{}{"nombre": "Sonar"}},
		},
	})
}

func TestTicketsList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tickets/my-tickets", ticketsHandler)

	out, err := runRoot(t, setupTestAPI(t, mux), "", "tickets", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NJOY-0001")
	assert.Contains(t, out, "2025-06-14 21:30")
	assert.Contains(t, out, "NJOY-TICKET-2")
	assert.Contains(t, out, "used")
}

func TestTicketsList_Empty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tickets/my-tickets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []interface{}{})
	})

	out, err := runRoot(t, setupTestAPI(t, mux), "", "tickets", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no tickets yet")
}

func TestTicketsList_FailureIsNotEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tickets/my-tickets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "down"})
	})

	out, err := runRoot(t, setupTestAPI(t, mux), "", "tickets", "list")
	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrTransport)
	assert.NotContains(t, out, "no tickets yet")
}

func setupTestApp(apiURL string, interactive bool) *app {
	return newApp(&config.Config{
		APIURL:         apiURL,
		AccessToken:    "opaque-token",
		RequestTimeout: 2 * time.Second,
		ScanLogCap:     200,
		OverlayWindow:  time.Second,
		ScanGuard:      config.GuardTolerant,
		GateID:         "gate-test",
		Locale:         "es",
		Interactive:    interactive,
	})
}

func TestListWithRetry(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tickets/my-tickets", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusBadGateway, map[string]string{"detail": "upstream"})
			return
		}
		ticketsHandler(w, r)
	})
	a := setupTestApp(setupTestAPI(t, mux), true)

	var out bytes.Buffer
	tickets, err := listWithRetry(context.Background(), a, strings.NewReader("y\n"), &out)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
	assert.Equal(t, int32(2), calls.Load())
	assert.Contains(t, out.String(), "Retry?")
}

func TestListWithRetry_Declined(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tickets/my-tickets", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadGateway, nil)
	})
	a := setupTestApp(setupTestAPI(t, mux), true)

	_, err := listWithRetry(context.Background(), a, strings.NewReader("n\n"), &bytes.Buffer{})
	assert.ErrorIs(t, err, status.ErrTransport)
	assert.Equal(t, int32(1), calls.Load())
}

func TestListWithRetry_NotOfferedForAuthErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tickets/my-tickets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "expired"})
	})
	a := setupTestApp(setupTestAPI(t, mux), true)

	var out bytes.Buffer
	_, err := listWithRetry(context.Background(), a, strings.NewReader("y\n"), &out)
	assert.ErrorIs(t, err, status.ErrAuthRequired)
	assert.NotContains(t, out.String(), "Retry?")
}

func TestPurchase_OutOfRangeNeverCallsAPI(t *testing.T) {
	var purchases atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /evento/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"nombre": "Primavera Nights", "precio": 20})
	})
	mux.HandleFunc("POST /tickets/purchase", func(w http.ResponseWriter, r *http.Request) {
		purchases.Add(1)
		writeJSON(w, http.StatusOK, map[string]interface{}{"ticket_ids": []int{1}})
	})
	url := setupTestAPI(t, mux)

	_, err := runRoot(t, url, "", "purchase", "12", "-n", "11", "--yes")
	assert.ErrorIs(t, err, status.ErrValidation)
	assert.Equal(t, int32(0), purchases.Load())

	out, err := runRoot(t, url, "", "purchase", "12", "-n", "2", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "20.00 € each, 40.00 € total")
	assert.Contains(t, out, "Purchased 1 ticket(s).")
	assert.Equal(t, int32(1), purchases.Load())
}

func TestPurchase_RejectedShowsServerDetailOnce(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /evento/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"nombre": "Sonar"})
	})
	mux.HandleFunc("POST /tickets/purchase", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "No quedan entradas"})
	})

	var out bytes.Buffer
	root := setupTestRoot(t, setupTestAPI(t, mux), strings.NewReader(""), &out, "purchase", "12", "--yes")
	code := run(context.Background(), root, &out)

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "Sonar x1 - free")
	assert.Equal(t, 1, strings.Count(out.String(), "No quedan entradas"))
	assert.Contains(t, out.String(), "error: No quedan entradas\n")
}

func TestPurchase_InvalidQuantityMessage(t *testing.T) {
	var out bytes.Buffer
	root := setupTestRoot(t, "http://127.0.0.1:1", strings.NewReader(""), &out, "purchase", "12", "-n", "0", "--yes")

	assert.Equal(t, 1, run(context.Background(), root, &out))
	assert.Equal(t, "error: Indica un evento y una cantidad entre 1 y 10.\n", out.String())
}

func TestScan_ForbiddenForPlainUsers(t *testing.T) {
	_, err := runRoot(t, "http://127.0.0.1:1", "", "scan", "--manual")
	assert.ErrorIs(t, err, status.ErrForbidden)
}

func TestRunScan_ManualCodes(t *testing.T) {
	var scans atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /scanner/scan-ticket", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Code string `json:"codigo"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if scans.Add(1) == 1 {
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "ok", "attendee": "Laia", "event": "Sonar", "code": body.Code})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Ticket no encontrado"})
	})
	t.Setenv("NJOY_ROLE", "scanner")
	out, err := runRoot(t, setupTestAPI(t, mux), "NJOY-0001\nNJOY-9999\n", "scan", "--manual")
	require.NoError(t, err)
	assert.Equal(t, int32(2), scans.Load())
	assert.Contains(t, out, "2 scans: 1 accepted, 0 already used, 1 not found, 0 errors")
}

func TestRunScan_EnterDismissesWithoutCancelling(t *testing.T) {
	slow := make(chan struct{})
	var scans atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /scanner/scan-ticket", func(w http.ResponseWriter, r *http.Request) {
		scans.Add(1)
		var body struct {
			Code string `json:"codigo"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Code == "NJOY-SLOW" {
			<-slow
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "ok " + body.Code, "code": body.Code})
	})
	t.Setenv("NJOY_ROLE", "scanner")
	t.Setenv("NJOY_OVERLAY_WINDOW", "1m")

	in, feed := io.Pipe()
	out := &lockedBuffer{}
	root := setupTestRoot(t, setupTestAPI(t, mux), in, out, "scan", "--manual")
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(context.Background()) }()

	write := func(s string) {
		_, err := io.WriteString(feed, s)
		require.NoError(t, err)
	}
	eventually := func(cond func() bool, msg string) {
		require.Eventually(t, cond, 3*time.Second, 5*time.Millisecond, msg)
	}

	write("NJOY-SLOW\n")
	eventually(func() bool { return scans.Load() == 1 }, "slow scan in flight")
	write("NJOY-0001\n")
	eventually(func() bool { return strings.Contains(out.String(), "ok NJOY-0001") }, "fast outcome shown")

	write("\n")
	eventually(func() bool { return strings.Contains(out.String(), "ready\n") }, "operator dismissed the outcome")

	close(slow)
	eventually(func() bool { return strings.Contains(out.String(), "ok NJOY-SLOW") }, "in-flight scan still completes")

	require.NoError(t, feed.Close())
	require.NoError(t, <-done)
	assert.Contains(t, out.String(), "2 scans: 2 accepted")
}

func TestDescribeQuote(t *testing.T) {
	paid := &models.Quote{
		Event:     models.EventSnapshot{Name: "Primavera"},
		Quantity:  3,
		UnitPrice: decimal.RequireFromString("12.5"),
		Total:     decimal.RequireFromString("37.5"),
	}
	assert.Equal(t, "Primavera x3 - 12.50 € each, 37.50 € total", describeQuote(paid))
	assert.Equal(t, "Sonar x1 - free", describeQuote(&models.Quote{Event: models.EventSnapshot{Name: "Sonar"}, Quantity: 1, Free: true}))
}

func TestTerminalOverlay(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	r := newTerminalOverlay(&out)

	r.Show(models.ScanOutcome{
		Status:  models.ScanAlreadyUsed,
		Message: "Entrada ya utilizada",
		Code:    "NJOY-0001",
		Ticket:  &models.TicketSnapshot{Attendee: "Laia", EventName: "Sonar"},
	})
	r.Hide()

	assert.Contains(t, out.String(), " ALREADY USED ")
	assert.Contains(t, out.String(), "NJOY-0001  Entrada ya utilizada")
	assert.Contains(t, out.String(), "Laia · Sonar")
	assert.True(t, strings.HasSuffix(out.String(), "ready\n"))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "No quedan entradas", userMessage(fmt.Errorf("x: %w", &status.RemoteError{StatusCode: 400, Detail: "No quedan entradas"})))
	assert.Equal(t, "could not reach the nJoy API, try again", userMessage(fmt.Errorf("x: %w", status.ErrTransport)))
	assert.Contains(t, userMessage(status.ErrAuthRequired), "NJOY_ACCESS_TOKEN")
}
