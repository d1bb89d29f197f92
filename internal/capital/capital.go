// Package capital reads wallet capital ahead of every sizing decision.
package capital

import (
	"context"
	"time"
)

// Snapshot is a versioned read of wallet capital. Version is the wallet's
// optimistic-lock version at read time; an order sized against a snapshot
// is rejected by the ledger once the wallet has moved on.
type Snapshot struct {
	WalletID  string    `msgpack:"wallet_id" json:"walletId"`
	Available float64   `msgpack:"available" json:"available"`
	Capital   float64   `msgpack:"capital" json:"capital"`
	Version   int64     `msgpack:"version" json:"version"`
	ReadAt    time.Time `msgpack:"read_at" json:"readAt"`
}

// Source supplies capital snapshots.
type Source interface {
	Snapshot(ctx context.Context, walletID string) (Snapshot, error)
}

// Invalidator drops any cached snapshot for a wallet.
type Invalidator interface {
	Invalidate(ctx context.Context, walletID string) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, walletID string) (Snapshot, error)

// Snapshot calls f.
func (f SourceFunc) Snapshot(ctx context.Context, walletID string) (Snapshot, error) {
	return f(ctx, walletID)
}
