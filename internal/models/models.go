// Package models provides domain models for the signal trading engine and ledger.
package models

// Exchange represents an exchange segment.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
	NFO Exchange = "NFO" // F&O
	CDS Exchange = "CDS" // Currency
	MCX Exchange = "MCX" // Commodity
)

// Direction is the directional bias of an equity-level signal.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
)

// IsValid reports whether d is a known direction.
func (d Direction) IsValid() bool {
	return d == Bullish || d == Bearish
}

// Sign returns +1 for bullish and -1 for bearish.
func (d Direction) Sign() float64 {
	if d == Bearish {
		return -1
	}
	return 1
}

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// PositionSide represents the side of an open position.
type PositionSide string

const (
	SideLong  PositionSide = "LONG"
	SideShort PositionSide = "SHORT"
)

// Sign returns +1 for long and -1 for short.
func (s PositionSide) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// PositionStatus represents the lifecycle state of a position.
type PositionStatus string

const (
	StatusActive      PositionStatus = "ACTIVE"
	StatusPartialExit PositionStatus = "PARTIAL_EXIT"
	StatusClosed      PositionStatus = "CLOSED"
)

// IsOpen reports whether the position still carries quantity.
func (s PositionStatus) IsOpen() bool {
	return s == StatusActive || s == StatusPartialExit
}

// ExitReason explains why quantity left a position.
type ExitReason string

const (
	ExitStopHit         ExitReason = "STOP_HIT"
	ExitTargetHit       ExitReason = "TARGET_HIT"
	ExitPartialTarget   ExitReason = "PARTIAL_TARGET"
	ExitTrailingStopHit ExitReason = "TRAILING_STOP_HIT"
	ExitManual          ExitReason = "MANUAL"
)
