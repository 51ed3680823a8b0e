package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"njoy-gate/config"
	"njoy-gate/internal/auth"
	"njoy-gate/internal/services"
	"njoy-gate/internal/services/njoy"
	"njoy-gate/internal/status"
	"njoy-gate/monitoring"
)

// app holds what every command needs, built once the flags are parsed.
type app struct {
	cfg     *config.Config
	session *auth.Session
	api     njoy.API
	monitor *monitoring.Monitor

	tickets   *services.TicketStore
	purchases *services.PurchaseFlow
	validator *services.ScanValidator
}

func newApp(cfg *config.Config) *app {
	session := auth.NewSession(cfg.AccessToken, cfg.Role)
	api := njoy.New(njoy.Config{BaseURL: cfg.APIURL, Timeout: cfg.RequestTimeout}, session)
	monitor := monitoring.NewMonitor(cfg.GateID)

	return &app{
		cfg:       cfg,
		session:   session,
		api:       api,
		monitor:   monitor,
		tickets:   services.NewTicketStore(api, session),
		purchases: services.NewPurchaseFlow(api, session, monitor),
		validator: services.NewScanValidator(api, session, monitor),
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "njoy",
		Short:         "nJoy tickets and gate scanning",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg := config.LoadConfig()
			if v, _ := cmd.Flags().GetString("api"); v != "" {
				cfg.APIURL = v
			}
			if v, _ := cmd.Flags().GetString("token"); v != "" {
				cfg.AccessToken = v
			}
			cfg.ConfigureLogging()
			*a = *newApp(cfg)
		},
	}

	root.PersistentFlags().String("api", "", "API base URL (overrides NJOY_API_URL)")
	root.PersistentFlags().String("token", "", "bearer token (overrides NJOY_ACCESS_TOKEN)")

	root.AddCommand(
		newTicketsCmd(a),
		newPurchaseCmd(a),
		newScanCmd(a),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel)

	return run(ctx, newRootCmd(), os.Stderr)
}

// run executes root and reports a failure once, on errOut.
func run(ctx context.Context, root *cobra.Command, errOut io.Writer) int {
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(errOut, "error:", userMessage(err))
		log.WithError(err).Debug("Command failed")
		return 1
	}
	return 0
}

// displayError pairs an error with the text to show the user for it.
type displayError struct {
	msg string
	err error
}

func (e *displayError) Error() string { return e.msg + ": " + e.err.Error() }

func (e *displayError) Unwrap() error { return e.err }

func userMessage(err error) string {
	var de *displayError
	if errors.As(err, &de) {
		return de.msg
	}
	switch {
	case errors.Is(err, status.ErrAuthRequired):
		return status.Message(err, "authentication required: set NJOY_ACCESS_TOKEN")
	case errors.Is(err, status.ErrForbidden):
		return status.Message(err, "your account is not allowed to do that")
	case errors.Is(err, status.ErrNotFound):
		return status.Message(err, "not found")
	case errors.Is(err, status.ErrTransport):
		return "could not reach the nJoy API, try again"
	default:
		return status.Message(err, err.Error())
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Info("Shutdown signal received, cleaning up...")
	cancel()
}
