// Package audit writes a JSON-lines trail of dispatch and ledger events.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"signal-trader/internal/logging"
	"signal-trader/internal/models"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Dispatch events
	EventOrderSubmitted EventType = "ORDER_SUBMITTED"
	EventOrderFilled    EventType = "ORDER_FILLED"
	EventOrderFailed    EventType = "ORDER_FAILED"
	EventOrderDuplicate EventType = "ORDER_DUPLICATE"

	// Ledger events
	EventPositionOpened   EventType = "POSITION_OPENED"
	EventPositionPartial  EventType = "POSITION_PARTIAL_EXIT"
	EventPositionClosed   EventType = "POSITION_CLOSED"
	EventTrailingMoved    EventType = "TRAILING_STOP_MOVED"
	EventInvariantBlocked EventType = "INVARIANT_REJECTED"
	EventCapitalCredited  EventType = "CAPITAL_CREDITED"
)

// Event represents a single audit log entry.
type Event struct {
	Timestamp   time.Time              `json:"timestamp"`
	EventType   EventType              `json:"event_type"`
	WalletID    string                 `json:"wallet_id,omitempty"`
	SignalID    string                 `json:"signal_id,omitempty"`
	PositionID  string                 `json:"position_id,omitempty"`
	Scrip       string                 `json:"scrip,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Success     bool                   `json:"success"`
	ErrorMsg    string                 `json:"error,omitempty"`
	SessionID   string                 `json:"session_id"`
	ExecutionID string                 `json:"execution_id,omitempty"`
}

// Config holds audit logger configuration.
type Config struct {
	Enabled    bool   `mapstructure:"enabled"`
	LogDir     string `mapstructure:"log_dir"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns the default audit configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Enabled:    true,
		LogDir:     filepath.Join(home, ".config", "signal-trader", "audit"),
		MaxSize:    50,
		MaxBackups: 30,
		MaxAge:     365,
		Compress:   true,
	}
}

// Logger appends audit events to a writer. A nil *Logger discards events.
type Logger struct {
	mu        sync.Mutex
	w         io.Writer
	closer    io.Closer
	sessionID string
}

// New creates an audit logger on a rotating file under cfg.LogDir.
func New(cfg Config) (*Logger, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	writer := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "audit.log"),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	l := NewWithWriter(writer)
	l.closer = writer
	return l, nil
}

// NewWithWriter creates an audit logger on an arbitrary writer.
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{w: w, sessionID: uuid.NewString()}
}

// Log writes one event.
func (l *Logger) Log(ctx context.Context, event Event) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	event.Timestamp = time.Now().UTC()
	event.SessionID = l.sessionID
	if event.ExecutionID == "" {
		event.ExecutionID = logging.ExecutionIDFrom(ctx)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}
	if _, err := l.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// LogOrder records an order submission outcome.
func (l *Logger) LogOrder(ctx context.Context, eventType EventType, order *models.OrderRequest, fill *models.Fill, err error) error {
	ev := Event{
		EventType: eventType,
		WalletID:  order.WalletID,
		SignalID:  order.SignalID,
		Scrip:     order.ScripCode,
		Success:   err == nil,
		Details: map[string]interface{}{
			"mode":            order.Mode,
			"side":            order.Side,
			"lots":            order.Lots,
			"quantity":        order.Quantity,
			"entry":           order.Entry,
			"stop_loss":       order.StopLoss,
			"targets":         order.Targets,
			"delta":           order.Delta,
			"confidence":      order.Confidence,
			"capital_version": order.CapitalVersion,
		},
	}
	if fill != nil {
		ev.PositionID = fill.PositionID
		ev.Details["fill_price"] = fill.FillPrice
		ev.Details["duplicate"] = fill.Duplicate
	}
	if err != nil {
		ev.ErrorMsg = err.Error()
	}
	return l.Log(ctx, ev)
}

// LogPosition records a position transition.
func (l *Logger) LogPosition(ctx context.Context, eventType EventType, p *models.Position, details map[string]interface{}) error {
	return l.Log(ctx, Event{
		EventType:  eventType,
		WalletID:   p.WalletID,
		SignalID:   p.SignalID,
		PositionID: p.ID,
		Scrip:      p.ScripCode,
		Success:    true,
		Details:    details,
	})
}

// LogRejected records a mutation refused by the ledger.
func (l *Logger) LogRejected(ctx context.Context, positionID, operation string, err error) error {
	return l.Log(ctx, Event{
		EventType:  EventInvariantBlocked,
		PositionID: positionID,
		Success:    false,
		ErrorMsg:   err.Error(),
		Details:    map[string]interface{}{"operation": operation},
	})
}

// Close flushes and closes the underlying file, if any.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
