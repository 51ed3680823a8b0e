package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"njoy-gate/internal/scanner"
	"njoy-gate/internal/services"
	"njoy-gate/internal/status"
	"njoy-gate/models"
	"njoy-gate/utils"
)

func newScanCmd(a *app) *cobra.Command {
	var (
		framesDir string
		manual    bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Validate tickets at the gate",
		Long: "Reads QR codes from a frame directory (--frames) or from stdin, one code per line " +
			"(--manual, also how keyboard-wedge scanners present themselves), and validates them. " +
			"An empty line (Enter) dismisses the result on screen.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.session.Authenticated() {
				return fmt.Errorf("scan: %w", status.ErrAuthRequired)
			}
			if !a.session.CanScan() {
				return fmt.Errorf("scan: role %q: %w", a.session.Role(), status.ErrForbidden)
			}

			if framesDir != "" && manual {
				return fmt.Errorf("scan: --frames and --manual are exclusive: %w", status.ErrValidation)
			}
			return runScan(cmd.Context(), a, framesDir, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&framesDir, "frames", "", "directory the camera drops frames into")
	cmd.Flags().BoolVar(&manual, "manual", false, "read codes from stdin")

	cmd.AddCommand(
		newScanEventsCmd(a),
		newScanLogCmd(a),
		newScanWatchCmd(a),
	)
	return cmd
}

// runScan drives one scan session. Codes come from framesDir when set,
// otherwise from in. In both modes Enter on in dismisses the outcome on
// screen.
func runScan(ctx context.Context, a *app, framesDir string, in io.Reader, out io.Writer) error {
	var sinks []services.LogSink
	if a.cfg.RedisURL != "" {
		rdb, err := utils.NewRedisClient(ctx, a.cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, scan log stays local")
		} else {
			defer rdb.Close()
			sinks = append(sinks, services.NewRedisLogSink(rdb, a.cfg.RedisLogKey, a.cfg.ScanLogCap))
		}
	}
	if a.cfg.PubNubPublishKey != "" && a.cfg.PubNubSubscribeKey != "" {
		sinks = append(sinks, services.NewPubNubBroadcaster(a.cfg.PubNubPublishKey, a.cfg.PubNubSubscribeKey, a.cfg.GateID, a.cfg.PubNubChannel))
	}

	var (
		source  scanner.FrameSource
		lineSrc *scanner.LineSource
	)
	if framesDir != "" {
		source = scanner.NewDirectorySource(framesDir)
	} else {
		lineSrc = scanner.NewLineSource(in)
		source = lineSrc
	}

	overlay := services.NewOverlay(a.cfg.OverlayWindow, newTerminalOverlay(out))
	session := services.NewScanSession(
		source,
		scanner.NewQRDecoder(),
		a.validator,
		services.NewScanLog(a.cfg.ScanLogCap, sinks...),
		services.ScanSessionOptions{
			Guard:   a.cfg.ScanGuard,
			GateID:  a.cfg.GateID,
			Overlay: overlay,
			Monitor: a.monitor,
			Events:  a.session,
		},
	)

	if lineSrc != nil {
		lineSrc.OnBlank = session.Dismiss
	}

	if err := session.Start(ctx); err != nil {
		session.Log().Close()
		return err
	}
	if lineSrc == nil {
		go dismissOnEnter(in, session.Dismiss)
	}
	fmt.Fprintf(out, "Scanning at gate %s (session %s). Enter dismisses a result, Ctrl+C stops.\n", a.cfg.GateID, session.ID())

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.MetricsAddr != "" {
		srv := newMetricsServer(a.cfg.MetricsAddr)
		g.Go(func() error {
			log.WithField("addr", a.cfg.MetricsAddr).Info("Serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-session.Done():
		}
		if err := session.Stop(); err != nil {
			log.WithError(err).Warn("Releasing the capture device failed")
		}
		// Results of validations still in flight are logged, not shown.
		session.Wait()
		session.Log().Close()
		printSummary(out, session.Log().Entries())
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		return err
	}
	return nil
}

// dismissOnEnter calls dismiss for every line read from in until it ends.
func dismissOnEnter(in io.Reader, dismiss func()) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		dismiss()
	}
}

// errShutdown ends the errgroup once the session is over so the metrics
// server is shut down with it.
var errShutdown = errors.New("scan session finished")

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func printSummary(out io.Writer, entries []models.ScanLogEntry) {
	counts := map[models.ScanStatus]int{}
	for _, e := range entries {
		counts[e.Status]++
	}
	fmt.Fprintf(out, "\n%d scans: %d accepted, %d already used, %d not found, %d errors\n",
		len(entries), counts[models.ScanAccepted], counts[models.ScanAlreadyUsed], counts[models.ScanNotFound], counts[models.ScanError])
}

// terminalOverlay paints scan outcomes as a coloured banner.
type terminalOverlay struct {
	out io.Writer
}

func newTerminalOverlay(out io.Writer) *terminalOverlay {
	return &terminalOverlay{out: out}
}

func statusColor(s models.ScanStatus) *color.Color {
	switch s {
	case models.ScanAccepted:
		return color.New(color.FgBlack, color.BgGreen, color.Bold)
	case models.ScanAlreadyUsed:
		return color.New(color.FgBlack, color.BgYellow, color.Bold)
	default:
		return color.New(color.FgWhite, color.BgRed, color.Bold)
	}
}

func (r *terminalOverlay) Show(o models.ScanOutcome) {
	banner := " " + strings.ToUpper(strings.ReplaceAll(string(o.Status), "_", " ")) + " "
	statusColor(o.Status).Fprint(r.out, banner)
	fmt.Fprintf(r.out, " %s  %s\n", o.Code, o.Message)
	if o.Ticket != nil && (o.Ticket.Attendee != "" || o.Ticket.EventName != "") {
		fmt.Fprintf(r.out, "    %s · %s\n", o.Ticket.Attendee, o.Ticket.EventName)
	}
}

func (r *terminalOverlay) Hide() {
	color.New(color.Faint).Fprintln(r.out, "ready")
}

func newScanEventsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List the events this account may scan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := a.api.ScannerEvents(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No events to scan.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEVENT\tVENUE\tDATE")
			for _, e := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.Name, e.Venue, e.StartsAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

func newScanLogCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the recent scans mirrored to Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.RedisURL == "" {
				return fmt.Errorf("scan log: NJOY_REDIS_URL is not set: %w", status.ErrValidation)
			}
			rdb, err := utils.NewRedisClient(cmd.Context(), a.cfg.RedisURL)
			if err != nil {
				return err
			}
			defer rdb.Close()
			return printRecent(cmd.Context(), rdb, a.cfg.RedisLogKey, limit, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	return cmd
}

func printRecent(ctx context.Context, rdb *redis.Client, key string, n int, out io.Writer) error {
	entries, err := services.NewRedisLogSink(rdb, key, n).Recent(ctx, n)
	if err != nil {
		return err
	}
	for _, e := range entries {
		printEntry(out, e)
	}
	return nil
}

func printEntry(out io.Writer, e models.ScanLogEntry) {
	statusColor(e.Status).Fprintf(out, " %-12s ", e.Status)
	fmt.Fprintf(out, " %s  %-10s %s  %s\n", e.At.Local().Format("15:04:05"), e.GateID, e.Code, e.Message)
}

func newScanWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow scans from every gate of the event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.PubNubSubscribeKey == "" {
				return fmt.Errorf("scan watch: NJOY_PUBNUB_SUBSCRIBE_KEY is not set: %w", status.ErrValidation)
			}
			out := cmd.OutOrStdout()
			feed := services.NewGateFeed(a.cfg.PubNubSubscribeKey, a.cfg.GateID+"-watch", a.cfg.PubNubChannel)
			return feed.Run(cmd.Context(), func(e models.ScanLogEntry) {
				printEntry(out, e)
			})
		},
	}
}
