package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"signal-trader/internal/dispatch"
	"signal-trader/internal/engine"
	"signal-trader/internal/errors"
	"signal-trader/internal/models"
	"signal-trader/pkg/utils"
)

func addTradeCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newPlanCmd(app))
	rootCmd.AddCommand(newBuyCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
}

func newPlanCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "plan [signal.json|-]",
		Short: "Show the derivative trade a signal would produce",
		Long: `Evaluate a signal against current paper capital without submitting it.
The signal is read from the file argument, or from stdin when the argument
is "-" or missing.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			sig, err := readSignal(cmd, args)
			if err != nil {
				return err
			}

			ticket, err := app.Dispatcher.Evaluate(cmd.Context(), sig)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(ticketView(ticket))
			}
			printTicket(output, ticket)
			return nil
		},
	}
}

func newBuyCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "buy [signal.json|-]",
		Short: "Evaluate a signal and book the derivative trade",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			sig, err := readSignal(cmd, args)
			if err != nil {
				return err
			}

			exec, ticket, err := app.Dispatcher.Trade(cmd.Context(), sig)
			if output.IsJSON() {
				view := map[string]interface{}{"ticket": ticketView(ticket)}
				if exec != nil {
					view["execution"] = exec.Status()
				}
				if jerr := output.JSON(view); jerr != nil {
					return jerr
				}
				return err
			}

			printTicket(output, ticket)
			output.Println()
			if exec == nil && err == nil {
				output.Warning("Not submitted: %s", unavailableReason(ticket))
				return nil
			}
			if err != nil {
				output.Error("✗ %v", err)
				return err
			}
			printExecution(output, exec.Status())
			return nil
		},
	}
}

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Trade a stream of newline-delimited JSON signals from stdin",
		Long: `Read signals from stdin until EOF and trade each one. With more than one
worker signals are traded concurrently and results print as they complete.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			keepGoing, _ := cmd.Flags().GetBool("keep-going")
			workers, _ := cmd.Flags().GetInt("workers")

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			signals := make(chan models.Signal)
			decodeErr := make(chan error, 1)
			go func() {
				defer close(signals)
				dec := json.NewDecoder(cmd.InOrStdin())
				for {
					var sig models.Signal
					if err := dec.Decode(&sig); err == io.EOF {
						return
					} else if err != nil {
						decodeErr <- errors.Wrapf(errors.ErrInputValidation, "decoding signal: %v", err)
						return
					}
					select {
					case signals <- sig:
					case <-ctx.Done():
						return
					}
				}
			}()

			runner := dispatch.NewRunner(app.Dispatcher, workers)
			var filled, skipped, failed int
			var firstErr error
			for res := range runner.Run(ctx, signals) {
				switch {
				case res.Err != nil:
					failed++
					app.Logger.Error().Err(res.Err).Str("signal_id", res.Signal.ID).Msg("Signal not traded")
					if output.IsJSON() {
						output.JSON(map[string]string{"signalId": res.Signal.ID, "error": res.Err.Error()})
					} else {
						output.Error("✗ %s %v", res.Signal.ID, res.Err)
					}
					var derr *errors.DispatchError
					if firstErr == nil && (!keepGoing || !errors.As(res.Err, &derr)) {
						firstErr = res.Err
						cancel()
					}
				case res.Skipped():
					skipped++
					if output.IsJSON() {
						output.JSON(map[string]string{"signalId": res.Signal.ID, "skipped": unavailableReason(res.Ticket)})
					} else {
						output.Warning("- %s %s", res.Signal.ID, unavailableReason(res.Ticket))
					}
				default:
					filled++
					if output.IsJSON() {
						output.JSON(res.Execution.Status())
					} else {
						printExecutionLine(output, res.Execution.Status())
					}
				}
			}

			if firstErr != nil {
				return firstErr
			}
			select {
			case err := <-decodeErr:
				return err
			default:
			}
			if !output.IsJSON() {
				output.Println()
				output.Info("Filled %d, skipped %d, failed %d", filled, skipped, failed)
			}
			return nil
		},
	}
	cmd.Flags().Bool("keep-going", true, "continue after a signal fails to dispatch")
	cmd.Flags().Int("workers", 1, "number of signals traded concurrently")
	return cmd
}

// readSignal decodes one signal from the file named in args, or stdin.
func readSignal(cmd *cobra.Command, args []string) (models.Signal, error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return models.Signal{}, fmt.Errorf("opening signal: %w", err)
		}
		defer f.Close()
		r = f
	}

	var sig models.Signal
	if err := json.NewDecoder(r).Decode(&sig); err != nil {
		return models.Signal{}, errors.Wrapf(errors.ErrInputValidation, "decoding signal: %v", err)
	}
	return sig, nil
}

func unavailableReason(t engine.Ticket) string {
	if t.Err != nil {
		return t.Err.Error()
	}
	if t.Selection.Reason != "" {
		return t.Selection.Reason
	}
	return "no order"
}

func ticketView(t engine.Ticket) map[string]interface{} {
	view := map[string]interface{}{
		"signalId":  t.Signal.ID,
		"strategy":  t.Profile.Name,
		"plan":      t.Plan,
		"selection": t.Selection,
		"levels":    t.Levels,
		"sizing":    t.Sizing,
		"capital":   t.Capital,
		"available": t.Available(),
	}
	if t.Order != nil {
		view["order"] = t.Order
	}
	if !t.Available() {
		view["reason"] = unavailableReason(t)
	}
	return view
}

func printTicket(output *Output, t engine.Ticket) {
	output.Bold("%s  %s  %s", t.Signal.ScripCode, output.Direction(string(t.Plan.Direction)), t.Profile.Name)
	output.Printf("  Equity:     entry %s  stop %s  targets %s  (%s)\n",
		utils.FormatPrice(t.Plan.Entry), utils.FormatPrice(t.Plan.StopLoss), formatLevels(t.Plan.Targets), t.Plan.Source)

	switch t.Selection.Mode {
	case models.ModeOption:
		premium := "live"
		if t.Selection.Synthetic {
			premium = "estimated"
		}
		output.Printf("  Instrument: %s %s %s (%s premium)\n", t.Selection.ScripCode,
			utils.FormatPrice(t.Selection.Strike), t.Selection.OptionType, premium)
	case models.ModeFutures:
		output.Printf("  Instrument: %s FUT\n", t.Selection.ScripCode)
	default:
		output.Warning("  Instrument: none (%s)", unavailableReason(t))
		return
	}

	output.Printf("  Levels:     entry %s  stop %s  targets %s  delta %.2f\n",
		utils.FormatPrice(t.Levels.Entry), utils.FormatPrice(t.Levels.StopLoss), formatLevels(t.Levels.Targets), t.Levels.Delta)
	output.Printf("  Sizing:     %d lots x %d = %d  (%.0f%% of %s)\n",
		t.Sizing.Lots, t.Selection.LotSize, t.Sizing.Quantity, t.Sizing.AllocPct*100, utils.FormatIndianCurrency(t.Capital.Available))
	if t.Sizing.CreditAmount > 0 {
		output.Warning("  Credit:     %s added to cover one lot", utils.FormatIndianCurrency(t.Sizing.CreditAmount))
	}
	if !t.Available() {
		output.Warning("  Disabled:   %s", unavailableReason(t))
	}
}

func printExecution(output *Output, s dispatch.ExecutionStatus) {
	if s.Fill == nil {
		output.Error("✗ %s %s", s.State, s.Error)
		return
	}
	if s.Fill.Duplicate {
		output.Warning("Signal %s already has position %s", s.SignalID, s.Fill.PositionID)
		return
	}
	output.Success("✓ Filled %d @ %s", s.Fill.Quantity, utils.FormatPrice(s.Fill.FillPrice))
	output.Dim("  Position: %s", s.Fill.PositionID)
	output.Dim("  Execution: %s (attempts %d)", s.ID, s.Attempts)
}

func printExecutionLine(output *Output, s dispatch.ExecutionStatus) {
	if s.Fill == nil {
		output.Error("✗ %s %s", s.SignalID, s.State)
		return
	}
	note := ""
	if s.Fill.Duplicate {
		note = " (duplicate)"
	}
	output.Success("✓ %s %d @ %s -> %s%s", s.SignalID, s.Fill.Quantity,
		utils.FormatPrice(s.Fill.FillPrice), s.Fill.PositionID, note)
}

func formatLevels(levels []float64) string {
	if len(levels) == 0 {
		return "-"
	}
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = utils.FormatPrice(l)
	}
	return strings.Join(parts, "/")
}
