package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"signal-trader/internal/errors"
	"signal-trader/internal/models"
	"signal-trader/pkg/utils"
)

func addLedgerCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newWalletCmd(app))
	rootCmd.AddCommand(newPositionsCmd(app))
	rootCmd.AddCommand(newMarkCmd(app))
	rootCmd.AddCommand(newTrailCmd(app))
	rootCmd.AddCommand(newCloseCmd(app))
	rootCmd.AddCommand(newTradesCmd(app))
}

func newWalletCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "wallet",
		Short: "Show paper capital and P&L",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			w, err := app.Ledger.Wallet(cmd.Context(), app.Ledger.WalletID())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(w)
			}

			output.Bold("Wallet %s", w.ID)
			output.Printf("  Capital:          %s\n", utils.FormatIndianCurrency(w.Capital))
			output.Printf("  Available Margin: %s\n", utils.FormatIndianCurrency(w.AvailableMargin))
			output.Printf("  Realized P&L:     %s\n", output.FormatPnL(w.RealizedPnL))
			output.Printf("  Unrealized P&L:   %s\n", output.FormatPnL(w.UnrealizedPnL))
			output.Printf("  Day P&L:          %s (%s)\n", output.FormatPnL(w.DayPnL), w.DayPnLDate)
			output.Printf("  Open Trades:      %d\n", w.OpenTrades)
			output.Printf("  Closed:           %d (win rate %.1f%%)\n", w.Wins+w.Losses, w.WinRate())
			if w.CreditedCapital > 0 {
				output.Dim("  Credited:         %s", utils.FormatIndianCurrency(w.CreditedCapital))
			}
			return nil
		},
	}
}

func newPositionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "List positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			all, _ := cmd.Flags().GetBool("all")

			positions, err := app.Ledger.Positions(cmd.Context(), app.Ledger.WalletID(), !all)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(positions)
			}
			if len(positions) == 0 {
				output.Info("No positions")
				return nil
			}
			printPositions(output, positions)
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "include closed positions")
	return cmd
}

func newMarkCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mark <position-id|scrip> <price>",
		Short: "Apply a price tick to a position",
		Long: `Apply a price to one position, or with --scrip to every open position on
that scrip code. Stops, partial exits, trailing stops and final targets are
evaluated against the price.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			price, err := parsePrice(args[1])
			if err != nil {
				return err
			}

			var positions []models.Position
			if byScrip, _ := cmd.Flags().GetBool("scrip"); byScrip {
				positions, err = app.Ledger.MarkScrip(cmd.Context(), app.Ledger.WalletID(), args[0], price)
			} else {
				var p *models.Position
				p, err = app.Ledger.MarkPrice(cmd.Context(), args[0], price)
				if p != nil {
					positions = []models.Position{*p}
				}
			}
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(positions)
			}
			printPositions(output, positions)
			return nil
		},
	}
	cmd.Flags().Bool("scrip", false, "treat the first argument as a scrip code")
	return cmd
}

func newTrailCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "trail <position-id> <stop>",
		Short: "Tighten a position's trailing stop",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			stop, err := parsePrice(args[1])
			if err != nil {
				return err
			}
			p, err := app.Ledger.UpdateTrailingStop(cmd.Context(), args[0], stop)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(p)
			}
			output.Success("✓ Trailing stop for %s now %s", p.ID, utils.FormatPrice(*p.TrailingStop))
			return nil
		},
	}
}

func newCloseCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "close <position-id> [price]",
		Short: "Close a position manually",
		Long:  "Close the remaining quantity at price, or at the last marked price when omitted.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			var price float64
			if len(args) == 2 {
				var err error
				if price, err = parsePrice(args[1]); err != nil {
					return err
				}
			} else {
				p, err := app.Ledger.Position(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				price = p.CurrentPrice
			}

			p, err := app.Ledger.ClosePosition(cmd.Context(), args[0], price)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(p)
			}
			output.Success("✓ Closed %s @ %s, realized %s", p.ID, utils.FormatPrice(price), output.FormatPnL(p.RealizedPnL))
			return nil
		},
	}
}

func newTradesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "Show the trade journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			limit, _ := cmd.Flags().GetInt("limit")

			trades, err := app.Ledger.Trades(cmd.Context(), app.Ledger.WalletID(), limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Info("No trades")
				return nil
			}

			table := NewTable(output, "TIME", "SYMBOL", "SIDE", "QTY", "ENTRY", "EXIT", "P&L", "REASON")
			for _, t := range trades {
				table.AddRow(
					t.Timestamp.In(utils.IndiaLocation).Format("02 Jan 15:04"),
					t.Symbol,
					string(t.Side),
					utils.FormatQuantity(t.Quantity),
					utils.FormatPrice(t.EntryPrice),
					utils.FormatPrice(t.ExitPrice),
					output.FormatPnL(t.PnL),
					string(t.ExitReason),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "maximum number of trades")
	return cmd
}

func printPositions(output *Output, positions []models.Position) {
	table := NewTable(output, "ID", "SYMBOL", "SIDE", "QTY", "ENTRY", "LTP", "STOP", "STATUS", "P&L")
	for _, p := range positions {
		stop, _ := p.EffectiveStop()
		pnl := p.UnrealizedPnL
		if !p.Status.IsOpen() {
			pnl = p.RealizedPnL
		}
		table.AddRow(
			p.ID,
			p.Symbol,
			string(p.Side),
			fmt.Sprintf("%d/%d", p.Quantity, p.InitialQuantity),
			utils.FormatPrice(p.AvgEntry),
			utils.FormatPrice(p.CurrentPrice),
			utils.FormatPrice(stop),
			string(p.Status),
			output.FormatPnL(pnl),
		)
	}
	table.Render()
}

func parsePrice(s string) (float64, error) {
	price, err := strconv.ParseFloat(s, 64)
	if err != nil || price <= 0 {
		return 0, errors.NewValidationError("price", s, "must be a positive number")
	}
	return price, nil
}
