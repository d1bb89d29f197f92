package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# signal-trader configuration
# Every key can be overridden with SIGNAL_TRADER_<SECTION>_<KEY>, e.g.
# SIGNAL_TRADER_LEDGER_INITIAL_CAPITAL=500000

[engine.sizing]
# Signals below this confidence (0-100) are not traded
min_confidence = 60.0
# Above this confidence the high allocation applies
high_confidence = 75.0
high_alloc_pct = 0.75
standard_alloc_pct = 0.50

[engine.resolver]
# Scrips traded as their own futures contract
currency_pairs = ["USDINR", "EURINR", "GBPINR", "JPYINR"]
currency_lot_size = 1000
# Time value added to intrinsic value for estimated premiums (fraction of spot)
time_value_pct = 0.01
# Lot size used when a legacy signal carries none
synthetic_lot_size = 1

# Strategy profiles. Unset keys keep the built-in values.
# [strategies.momentum]
# confidence_scale = 100.0
# stop_multiple = 2.0
# target_multiples = [2.0, 3.0, 4.0, 5.0]
# partial_close_pct = 50.0
# trail_percent = 1.5

[dispatch]
wallet_id = "paper"
# Ledger submission deadline
timeout = "5s"
# A filled execution is dismissed after this delay
dismiss_after = "3s"
# Re-size attempts when capital moved under an order
stale_attempts = 3
stale_backoff = "10ms"

[dispatch.breaker]
failure_threshold = 5
success_threshold = 2
cooldown = "30s"

[ledger]
wallet_id = "paper"
# Paper capital in INR (10 lakhs)
initial_capital = 1000000.0
# Credit the shortfall when a single forced lot costs more than the margin
credit_shortfall = true
# db_path = "~/.config/signal-trader/ledger.db"

[capital]
# "none" reads the ledger directly, "redis" caches snapshots briefly
cache = "none"

[capital.redis]
addr = "localhost:6379"
password = ""
db = 0
ttl = "2s"

[log]
# debug, info, warn, error
level = "info"
console = true
file = true
max_size = 100
max_backups = 7
max_age = 30

[audit]
enabled = true
max_size = 50
max_backups = 30
max_age = 365
compress = true

[metrics]
enabled = false
addr = ":9464"
`

func createTemplateConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}
