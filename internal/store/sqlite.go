// Package store provides ledger persistence implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"signal-trader/internal/errors"
	"signal-trader/internal/models"
)

// SQLiteStore implements LedgerStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// NewSQLiteStore opens (or creates) the ledger database at dbPath.
// Transactions take the write lock up front so concurrent opens against the
// same wallet serialise instead of failing on lock upgrade.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Paper wallets
	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		capital REAL NOT NULL,
		available_margin REAL NOT NULL,
		realized_pnl REAL NOT NULL DEFAULT 0,
		day_pnl REAL NOT NULL DEFAULT 0,
		day_pnl_date TEXT NOT NULL DEFAULT '',
		open_trades INTEGER NOT NULL DEFAULT 0,
		total_trades INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		credited_capital REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		last_updated DATETIME NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);

	-- Virtual derivative positions, one per signal per wallet
	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL,
		signal_id TEXT NOT NULL,
		scrip_code TEXT NOT NULL,
		symbol TEXT,
		exchange TEXT NOT NULL,
		mode TEXT NOT NULL,
		strike REAL,
		option_type TEXT,
		strategy TEXT,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		initial_quantity INTEGER NOT NULL,
		lot_size INTEGER NOT NULL,
		multiplier REAL NOT NULL DEFAULT 1,
		avg_entry REAL NOT NULL,
		current_price REAL NOT NULL,
		stop_loss REAL NOT NULL,
		targets TEXT NOT NULL,
		trailing_stop REAL,
		tp1_hit INTEGER NOT NULL DEFAULT 0,
		partial_close_pct REAL NOT NULL DEFAULT 0,
		trail_percent REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		exit_reason TEXT,
		realized_pnl REAL NOT NULL DEFAULT 0,
		opened_at DATETIME NOT NULL,
		closed_at DATETIME,
		last_updated DATETIME NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		UNIQUE(wallet_id, signal_id),
		FOREIGN KEY (wallet_id) REFERENCES wallets(id)
	);

	-- Trade journal, one row per exit leg
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		position_id TEXT NOT NULL,
		wallet_id TEXT NOT NULL,
		signal_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		exchange TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		pnl REAL NOT NULL,
		pnl_percent REAL,
		strategy TEXT,
		exit_reason TEXT NOT NULL,
		is_paper INTEGER DEFAULT 1,
		hold_duration INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (position_id) REFERENCES positions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_positions_wallet_status ON positions(wallet_id, status);
	CREATE INDEX IF NOT EXISTS idx_trades_wallet_time ON trades(wallet_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_trades_position ON trades(position_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside one transaction. fn's error rolls everything back.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&sqliteTx{q: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetWallet reads a wallet outside any transaction.
func (s *SQLiteStore) GetWallet(ctx context.Context, id string) (*models.Wallet, error) {
	return getWallet(ctx, s.db, id)
}

// GetPosition reads a position outside any transaction.
func (s *SQLiteStore) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	return getPosition(ctx, s.db, "id = ?", id)
}

// ListPositions lists positions matching filter, newest first.
func (s *SQLiteStore) ListPositions(ctx context.Context, filter PositionFilter) ([]models.Position, error) {
	return listPositions(ctx, s.db, filter)
}

// GetTrades retrieves journal rows, newest first.
func (s *SQLiteStore) GetTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	query := `SELECT id, position_id, wallet_id, signal_id, timestamp, symbol, exchange, side, quantity,
		entry_price, exit_price, pnl, pnl_percent, strategy, exit_reason, is_paper, hold_duration
		FROM trades WHERE 1=1`
	args := []interface{}{}

	if filter.WalletID != "" {
		query += " AND wallet_id = ?"
		args = append(args, filter.WalletID)
	}
	if filter.PositionID != "" {
		query += " AND position_id = ?"
		args = append(args, filter.PositionID)
	}
	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if !filter.StartDate.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.EndDate)
	}

	query += " ORDER BY timestamp DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var strategy sql.NullString
		var pnlPct sql.NullFloat64
		var isPaper int
		var hold sql.NullInt64
		if err := rows.Scan(&t.ID, &t.PositionID, &t.WalletID, &t.SignalID, &t.Timestamp, &t.Symbol, &t.Exchange,
			&t.Side, &t.Quantity, &t.EntryPrice, &t.ExitPrice, &t.PnL, &pnlPct, &strategy, &t.ExitReason,
			&isPaper, &hold); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Strategy = strategy.String
		t.PnLPercent = pnlPct.Float64
		t.IsPaper = isPaper == 1
		t.HoldDuration = time.Duration(hold.Int64)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// sqliteTx implements Tx on a *sql.Tx.
type sqliteTx struct {
	q querier
}

func (t *sqliteTx) GetWallet(ctx context.Context, id string) (*models.Wallet, error) {
	return getWallet(ctx, t.q, id)
}

func (t *sqliteTx) CreateWallet(ctx context.Context, w *models.Wallet) error {
	if w.Version == 0 {
		w.Version = 1
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO wallets (id, capital, available_margin, realized_pnl, day_pnl, day_pnl_date, open_trades,
			total_trades, wins, losses, credited_capital, created_at, last_updated, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.Capital, w.AvailableMargin, w.RealizedPnL, w.DayPnL, w.DayPnLDate, w.OpenTrades,
		w.TotalTrades, w.Wins, w.Losses, w.CreditedCapital, w.CreatedAt, w.LastUpdated, w.Version)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func (t *sqliteTx) UpdateWallet(ctx context.Context, w *models.Wallet) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE wallets SET capital = ?, available_margin = ?, realized_pnl = ?, day_pnl = ?, day_pnl_date = ?,
			open_trades = ?, total_trades = ?, wins = ?, losses = ?, credited_capital = ?, last_updated = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`, w.Capital, w.AvailableMargin, w.RealizedPnL, w.DayPnL, w.DayPnLDate, w.OpenTrades, w.TotalTrades,
		w.Wins, w.Losses, w.CreditedCapital, w.LastUpdated, w.ID, w.Version)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	if err := checkVersioned(res, "wallet", w.ID); err != nil {
		return err
	}
	w.Version++
	return nil
}

func (t *sqliteTx) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	return getPosition(ctx, t.q, "id = ?", id)
}

func (t *sqliteTx) GetPositionBySignal(ctx context.Context, walletID, signalID string) (*models.Position, error) {
	return getPosition(ctx, t.q, "wallet_id = ? AND signal_id = ?", walletID, signalID)
}

func (t *sqliteTx) InsertPosition(ctx context.Context, p *models.Position) error {
	targets, err := json.Marshal(p.Targets)
	if err != nil {
		return fmt.Errorf("failed to encode targets: %w", err)
	}
	if p.Version == 0 {
		p.Version = 1
	}

	_, err = t.q.ExecContext(ctx, `
		INSERT INTO positions (id, wallet_id, signal_id, scrip_code, symbol, exchange, mode, strike, option_type,
			strategy, side, quantity, initial_quantity, lot_size, multiplier, avg_entry, current_price, stop_loss, targets,
			trailing_stop, tp1_hit, partial_close_pct, trail_percent, status, exit_reason, realized_pnl,
			opened_at, closed_at, last_updated, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.WalletID, p.SignalID, p.ScripCode, p.Symbol, p.Exchange, p.Mode, p.Strike, p.OptionType,
		p.Strategy, p.Side, p.Quantity, p.InitialQuantity, p.LotSize, multiplierOr1(p.Multiplier), p.AvgEntry, p.CurrentPrice, p.StopLoss,
		string(targets), nullFloat(p.TrailingStop), boolInt(p.TP1Hit), p.PartialClosePct, p.TrailPercent,
		p.Status, p.ExitReason, p.RealizedPnL, p.OpenedAt, nullTime(p.ClosedAt), p.LastUpdated, p.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(errors.ErrDuplicateSignal, "signal %s", p.SignalID)
		}
		return fmt.Errorf("failed to insert position: %w", err)
	}
	return nil
}

func (t *sqliteTx) UpdatePosition(ctx context.Context, p *models.Position) error {
	targets, err := json.Marshal(p.Targets)
	if err != nil {
		return fmt.Errorf("failed to encode targets: %w", err)
	}

	res, err := t.q.ExecContext(ctx, `
		UPDATE positions SET quantity = ?, current_price = ?, stop_loss = ?, targets = ?, trailing_stop = ?,
			tp1_hit = ?, status = ?, exit_reason = ?, realized_pnl = ?, closed_at = ?, last_updated = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`, p.Quantity, p.CurrentPrice, p.StopLoss, string(targets), nullFloat(p.TrailingStop), boolInt(p.TP1Hit),
		p.Status, p.ExitReason, p.RealizedPnL, nullTime(p.ClosedAt), p.LastUpdated, p.ID, p.Version)
	if err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}
	if err := checkVersioned(res, "position", p.ID); err != nil {
		return err
	}
	p.Version++
	return nil
}

func (t *sqliteTx) ListPositions(ctx context.Context, filter PositionFilter) ([]models.Position, error) {
	return listPositions(ctx, t.q, filter)
}

// LogTrade saves a journal row.
func (t *sqliteTx) LogTrade(ctx context.Context, trade *models.Trade) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO trades (id, position_id, wallet_id, signal_id, timestamp, symbol, exchange, side, quantity,
			entry_price, exit_price, pnl, pnl_percent, strategy, exit_reason, is_paper, hold_duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, trade.ID, trade.PositionID, trade.WalletID, trade.SignalID, trade.Timestamp, trade.Symbol, trade.Exchange,
		trade.Side, trade.Quantity, trade.EntryPrice, trade.ExitPrice, trade.PnL, trade.PnLPercent, trade.Strategy,
		trade.ExitReason, boolInt(trade.IsPaper), trade.HoldDuration.Nanoseconds())
	if err != nil {
		return fmt.Errorf("failed to log trade: %w", err)
	}
	return nil
}

func getWallet(ctx context.Context, q querier, id string) (*models.Wallet, error) {
	var w models.Wallet
	err := q.QueryRowContext(ctx, `
		SELECT id, capital, available_margin, realized_pnl, day_pnl, day_pnl_date, open_trades, total_trades,
			wins, losses, credited_capital, created_at, last_updated, version
		FROM wallets WHERE id = ?
	`, id).Scan(&w.ID, &w.Capital, &w.AvailableMargin, &w.RealizedPnL, &w.DayPnL, &w.DayPnLDate, &w.OpenTrades,
		&w.TotalTrades, &w.Wins, &w.Losses, &w.CreditedCapital, &w.CreatedAt, &w.LastUpdated, &w.Version)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrWalletNotFound, "wallet %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &w, nil
}

const positionColumns = `id, wallet_id, signal_id, scrip_code, symbol, exchange, mode, strike, option_type,
	strategy, side, quantity, initial_quantity, lot_size, multiplier, avg_entry, current_price, stop_loss, targets,
	trailing_stop, tp1_hit, partial_close_pct, trail_percent, status, exit_reason, realized_pnl,
	opened_at, closed_at, last_updated, version`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func multiplierOr1(m float64) float64 {
	if m > 0 {
		return m
	}
	return 1
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	var symbol, optionType, strategy, exitReason sql.NullString
	var strike, trailing sql.NullFloat64
	var targets string
	var tp1 int
	var closedAt sql.NullTime

	if err := row.Scan(&p.ID, &p.WalletID, &p.SignalID, &p.ScripCode, &symbol, &p.Exchange, &p.Mode, &strike,
		&optionType, &strategy, &p.Side, &p.Quantity, &p.InitialQuantity, &p.LotSize, &p.Multiplier, &p.AvgEntry,
		&p.CurrentPrice, &p.StopLoss, &targets, &trailing, &tp1, &p.PartialClosePct, &p.TrailPercent,
		&p.Status, &exitReason, &p.RealizedPnL, &p.OpenedAt, &closedAt, &p.LastUpdated, &p.Version); err != nil {
		return nil, err
	}

	p.Symbol = symbol.String
	p.OptionType = models.OptionType(optionType.String)
	p.Strategy = strategy.String
	p.ExitReason = models.ExitReason(exitReason.String)
	p.Strike = strike.Float64
	p.TP1Hit = tp1 == 1
	if trailing.Valid {
		v := trailing.Float64
		p.TrailingStop = &v
	}
	if closedAt.Valid {
		t := closedAt.Time
		p.ClosedAt = &t
	}
	if err := json.Unmarshal([]byte(targets), &p.Targets); err != nil {
		return nil, fmt.Errorf("failed to decode targets: %w", err)
	}
	return &p, nil
}

func getPosition(ctx context.Context, q querier, where string, args ...interface{}) (*models.Position, error) {
	row := q.QueryRowContext(ctx, "SELECT "+positionColumns+" FROM positions WHERE "+where, args...)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrPositionNotFound, "%v", args)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return p, nil
}

func listPositions(ctx context.Context, q querier, filter PositionFilter) ([]models.Position, error) {
	query := "SELECT " + positionColumns + " FROM positions WHERE 1=1"
	args := []interface{}{}

	if filter.WalletID != "" {
		query += " AND wallet_id = ?"
		args = append(args, filter.WalletID)
	}
	if filter.SignalID != "" {
		query += " AND signal_id = ?"
		args = append(args, filter.SignalID)
	}
	if filter.OpenOnly {
		query += " AND status != ?"
		args = append(args, models.StatusClosed)
	}

	query += " ORDER BY opened_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func checkVersioned(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return errors.Wrapf(errors.ErrVersionConflict, "%s %s", kind, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
