// Package cli provides the command-line interface for signal-trader.
package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"signal-trader/internal/audit"
	"signal-trader/internal/capital"
	"signal-trader/internal/config"
	"signal-trader/internal/dispatch"
	"signal-trader/internal/engine"
	"signal-trader/internal/ledger"
	"signal-trader/internal/logging"
	"signal-trader/internal/metrics"
	"signal-trader/internal/store"
	"signal-trader/pkg/utils"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies. They are built in the root
// command's pre-run so flags can adjust the configuration first.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
	Audit      *audit.Logger
	Store      *store.SQLiteStore
	Ledger     *ledger.Ledger
	Engine     *engine.Engine
	Dispatcher *dispatch.Dispatcher

	cache       *capital.RedisCache
	stopMetrics context.CancelFunc
}

// NewRootCmd creates the root command for the CLI. A nil cfg is loaded
// from --config when a command runs, and the logger is then rebuilt from
// its log section.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "signal-trader",
		Short: "Paper-trade scored equity signals as options and futures",
		Long: `signal-trader turns a scored directional equity signal into a simulated
derivative trade: it picks an option or futures contract, maps the equity
levels onto the derivative, sizes the order from paper capital and books it
in a virtual ledger that tracks partial exits, trailing stops and P&L.

Signals are read as JSON from a file or stdin.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return app.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/signal-trader/config.toml)")
	rootCmd.PersistentFlags().String("db", "", "ledger database path (overrides ledger.db_path)")
	rootCmd.PersistentFlags().String("metrics-addr", "", "serve Prometheus metrics on this address while the command runs")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addTradeCommands(rootCmd, app)
	addLedgerCommands(rootCmd, app)

	return rootCmd
}

func (a *App) setup(cmd *cobra.Command) error {
	flags := cmd.Flags()

	if a.Config == nil {
		path, _ := flags.GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		a.Config = cfg
		a.Logger = logging.NewLoggerWithConfig(cfg.Log)
	}
	if debug, _ := flags.GetBool("debug"); debug {
		logging.SetDebugLevel()
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}
	if db, _ := flags.GetString("db"); db != "" {
		a.Config.Ledger.DBPath = db
	}

	metricsAddr, _ := flags.GetString("metrics-addr")
	if metricsAddr == "" && a.Config.Metrics.Enabled {
		metricsAddr = a.Config.Metrics.Addr
	}
	a.Metrics = metrics.New()
	if metricsAddr != "" {
		ctx, cancel := context.WithCancel(context.Background())
		a.stopMetrics = cancel
		go func() {
			if err := a.Metrics.Serve(ctx, metricsAddr, a.Logger); err != nil {
				a.Logger.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	auditLog, err := audit.New(a.Config.Audit)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Audit trail unavailable")
	}
	a.Audit = auditLog

	st, err := store.NewSQLiteStore(a.Config.Ledger.DBPath)
	if err != nil {
		return fmt.Errorf("opening ledger database: %w", err)
	}
	a.Store = st

	// The cache reads through to the ledger, and the ledger invalidates
	// the cache, so the ledger is bound late.
	var led *ledger.Ledger
	var src capital.Source = capital.SourceFunc(func(ctx context.Context, walletID string) (capital.Snapshot, error) {
		return led.Snapshot(ctx, walletID)
	})

	ledgerOpts := []ledger.Option{ledger.WithMetrics(a.Metrics), ledger.WithAudit(a.Audit)}
	dispatchOpts := []dispatch.Option{dispatch.WithMetrics(a.Metrics), dispatch.WithAudit(a.Audit)}
	if a.Config.Capital.Cache == "redis" {
		cache, err := capital.NewRedisCache(a.Config.Capital.Redis, src, a.Logger)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Redis capital cache unavailable, reading the ledger directly")
		} else {
			a.cache = cache
			src = cache
			ledgerOpts = append(ledgerOpts, ledger.WithInvalidator(cache))
			dispatchOpts = append(dispatchOpts, dispatch.WithInvalidator(cache))
		}
	}

	led = ledger.New(st, a.Config.Ledger.Config, a.Logger, ledgerOpts...)
	a.Ledger = led
	if _, err := led.EnsureWallet(cmd.Context()); err != nil {
		return fmt.Errorf("preparing wallet: %w", err)
	}

	a.Engine = engine.New(a.Config.EngineSettings(), a.Logger, engine.WithMetrics(a.Metrics))
	dispatchCfg := a.Config.Dispatch
	dispatchCfg.WalletID = led.WalletID()
	a.Dispatcher = dispatch.New(a.Engine, led, src, dispatchCfg, a.Logger, dispatchOpts...)
	return nil
}

// Close releases everything setup opened.
func (a *App) Close() error {
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
	if a.cache != nil {
		a.cache.Close()
	}
	a.Audit.Close()
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("signal-trader v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Sizing")
	output.Printf("  Min Confidence:   %.0f\n", cfg.Engine.Sizing.MinConfidence)
	output.Printf("  High Confidence:  > %.0f\n", cfg.Engine.Sizing.HighConfidence)
	output.Printf("  Allocation:       %.0f%% / %.0f%%\n", cfg.Engine.Sizing.HighAllocPct*100, cfg.Engine.Sizing.StandardAllocPct*100)
	output.Println()

	output.Bold("Strategies")
	table := NewTable(output, "NAME", "SCALE", "STOP x", "TARGETS x", "PARTIAL %", "TRAIL %")
	for _, name := range []string{engine.StrategyPattern, engine.StrategyMomentum, engine.StrategyVolume, engine.StrategyRegime, engine.StrategyConfluence} {
		p := cfg.Strategies[name]
		table.AddRow(name, fmt.Sprintf("%.0f", p.ConfidenceScale), fmt.Sprintf("%.1f", p.StopMultiple),
			fmt.Sprintf("%v", p.TargetMultiples), fmt.Sprintf("%.0f", p.PartialClosePct), fmt.Sprintf("%.1f", p.TrailPercent))
	}
	table.Render()
	output.Println()

	output.Bold("Ledger")
	output.Printf("  Wallet:           %s\n", cfg.Ledger.WalletID)
	output.Printf("  Initial Capital:  %s\n", utils.FormatIndianCurrency(cfg.Ledger.InitialCapital))
	output.Printf("  Credit Shortfall: %v\n", cfg.Ledger.CreditShortfall)
	output.Printf("  Database:         %s\n", cfg.Ledger.DBPath)
	output.Println()

	output.Bold("Dispatch")
	output.Printf("  Timeout:          %s\n", cfg.Dispatch.Timeout)
	output.Printf("  Dismiss After:    %s\n", cfg.Dispatch.DismissAfter)
	output.Printf("  Capital Cache:    %s\n", cfg.Capital.Cache)
}
