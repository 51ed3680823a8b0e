package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"njoy-gate/internal/codec"
	"njoy-gate/internal/status"
	"njoy-gate/models"
)

func newTicketsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tickets",
		Short: "List, show and export your tickets",
	}
	cmd.AddCommand(
		newTicketsListCmd(a),
		newTicketsShowCmd(a),
		newTicketsQRCmd(a),
		newTicketsExportCmd(a),
	)
	return cmd
}

func newTicketsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tickets owned by the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tickets, err := listWithRetry(cmd.Context(), a, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			writeTickets(cmd.OutOrStdout(), tickets)
			return nil
		},
	}
}

// listWithRetry loads the ticket list. Transport failures are offered a
// manual retry when the CLI is interactive; nothing retries on its own.
func listWithRetry(ctx context.Context, a *app, in io.Reader, out io.Writer) ([]models.Ticket, error) {
	reader := bufio.NewReader(in)
	for {
		tickets, err := a.tickets.List(ctx)
		if err == nil {
			return tickets, nil
		}
		if !a.cfg.Interactive || !errors.Is(err, status.ErrTransport) {
			return nil, err
		}
		fmt.Fprintln(out, "Could not load your tickets:", userMessage(err))
		fmt.Fprint(out, "Retry? [y/N] ")
		answer, _ := reader.ReadString('\n')
		if ans := strings.ToLower(strings.TrimSpace(answer)); ans != "y" && ans != "yes" {
			return nil, err
		}
	}
}

func writeTickets(out io.Writer, tickets []models.Ticket) {
	if len(tickets) == 0 {
		fmt.Fprintln(out, "You have no tickets yet.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCODE\tEVENT\tDATE\tSTATUS")
	for _, t := range tickets {
		state := "valid"
		if !t.Activated {
			state = "used"
		}
		date := "-"
		if !t.Event.StartsAt.IsZero() {
			date = t.Event.StartsAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, codec.DeriveCode(t), models.Truncate(t.Event.Name, 35), date, state)
	}
	w.Flush()
}

func newTicketsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <ticket-id>",
		Short: "Show one ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.tickets.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			l := codec.BuildLayout(*t, time.Now(), a.cfg.Locale)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s\n", l.Genre, l.EventName)
			fmt.Fprintf(out, "  %s\n  %s\n", l.DateText, l.Venue)
			fmt.Fprintf(out, "  %s (%s)\n", l.Attendee, l.Owner)
			fmt.Fprintf(out, "  %s\n", l.PriceText)
			fmt.Fprintf(out, "  %s  [%s]\n", l.Code, l.StatusText)
			return nil
		},
	}
}

func newTicketsQRCmd(a *app) *cobra.Command {
	var (
		out  string
		size int
	)
	cmd := &cobra.Command{
		Use:   "qr <ticket-id|code>",
		Short: "Write the ticket QR code as a PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.tickets.Find(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			code := codec.DeriveCode(*t)
			png, err := codec.EncodePNG(code, size)
			if err != nil {
				return err
			}
			if out == "" {
				out = codec.QRFilename(*t)
			}
			if err := os.WriteFile(out, png, 0o644); err != nil {
				return fmt.Errorf("write qr: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	cmd.Flags().IntVar(&size, "size", codec.DefaultQRSize, "image size in pixels")
	return cmd
}

func newTicketsExportCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export <ticket-id>",
		Short: "Export a ticket as a printable PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.tickets.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			path, err := exportTicket(*t, dir, a.cfg.Locale, time.Now())
			if err != nil {
				a.monitor.TrackDocument("failed")
				if errors.Is(err, status.ErrCodec) {
					// The ticket itself is fine; only the document could not be built.
					fmt.Fprintln(cmd.ErrOrStderr(), "Could not generate the PDF for this ticket.")
					log.WithError(err).WithField("ticket_id", t.ID).Warn("Document export failed")
					return nil
				}
				return err
			}
			a.monitor.TrackDocument("ok")
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "output directory")
	return cmd
}

func exportTicket(t models.Ticket, dir, locale string, now time.Time) (string, error) {
	png, err := codec.EncodePNG(codec.DeriveCode(t), codec.DefaultQRSize)
	if err != nil {
		return "", err
	}
	doc, err := codec.RenderDocument(t, png, now, locale)
	if err != nil {
		return "", err
	}
	return doc.Save(dir)
}
