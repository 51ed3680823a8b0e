package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"njoy-gate/internal/services"
	"njoy-gate/models"
)

func newPurchaseCmd(a *app) *cobra.Command {
	var (
		quantity int
		yes      bool
	)
	cmd := &cobra.Command{
		Use:   "purchase <event-id>",
		Short: "Buy tickets for an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			quote, err := a.purchases.Quote(ctx, args[0], quantity)
			if err != nil {
				return &displayError{msg: services.PurchaseMessage(err), err: err}
			}
			fmt.Fprintln(out, describeQuote(quote))

			if !yes && a.cfg.Interactive && !confirm(cmd, "Confirm purchase?") {
				fmt.Fprintln(out, "Purchase cancelled.")
				return nil
			}

			result, err := a.purchases.Purchase(ctx, args[0], quantity)
			if err != nil {
				return &displayError{msg: services.PurchaseMessage(err), err: err}
			}
			fmt.Fprintf(out, "Purchased %d ticket(s).\n", len(result.TicketIDs))
			if result.Message != "" {
				fmt.Fprintln(out, result.Message)
			}
			fmt.Fprintln(out, "Run `njoy tickets list` to see them.")
			return nil
		},
	}
	cmd.Flags().IntVarP(&quantity, "quantity", "n", 1, fmt.Sprintf("number of tickets (%d-%d)", models.MinQuantity, models.MaxQuantity))
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func describeQuote(q *models.Quote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s x%d", q.Event.Name, q.Quantity)
	if q.Free {
		b.WriteString(" - free")
		return b.String()
	}
	fmt.Fprintf(&b, " - %s € each, %s € total", q.UnitPrice.StringFixed(2), q.Total.StringFixed(2))
	return b.String()
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.OutOrStdout(), prompt+" [y/N] ")
	var answer string
	fmt.Fscanln(cmd.InOrStdin(), &answer)
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
