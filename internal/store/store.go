// Package store provides ledger persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"signal-trader/internal/models"
)

// LedgerStore persists wallets, positions and the trade journal. Mutations
// go through WithTx so a position transition and its wallet effects commit
// or roll back together.
type LedgerStore interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetWallet(ctx context.Context, id string) (*models.Wallet, error)
	GetPosition(ctx context.Context, id string) (*models.Position, error)
	ListPositions(ctx context.Context, filter PositionFilter) ([]models.Position, error)
	GetTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error)

	Close() error
}

// Tx is the transactional view of the store. Update methods check the
// row's version, bump it on success and return ErrVersionConflict when
// another writer got there first.
type Tx interface {
	GetWallet(ctx context.Context, id string) (*models.Wallet, error)
	CreateWallet(ctx context.Context, w *models.Wallet) error
	UpdateWallet(ctx context.Context, w *models.Wallet) error

	GetPosition(ctx context.Context, id string) (*models.Position, error)
	GetPositionBySignal(ctx context.Context, walletID, signalID string) (*models.Position, error)
	InsertPosition(ctx context.Context, p *models.Position) error
	UpdatePosition(ctx context.Context, p *models.Position) error
	ListPositions(ctx context.Context, filter PositionFilter) ([]models.Position, error)

	LogTrade(ctx context.Context, t *models.Trade) error
}

// PositionFilter represents filters for querying positions.
type PositionFilter struct {
	WalletID string
	OpenOnly bool
	SignalID string
	Limit    int
}

// TradeFilter represents filters for querying trades.
type TradeFilter struct {
	WalletID   string
	PositionID string
	Symbol     string
	StartDate  time.Time
	EndDate    time.Time
	Limit      int
}
