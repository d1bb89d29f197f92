package models

// InstrumentMode is the kind of derivative chosen to express a signal.
type InstrumentMode string

const (
	ModeOption  InstrumentMode = "OPTION"
	ModeFutures InstrumentMode = "FUTURES"
	ModeNone    InstrumentMode = "NONE"
)

// OptionType represents a call or put.
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

// OptionTypeFor returns the option type that profits from a move in direction d.
func OptionTypeFor(d Direction) OptionType {
	if d == Bearish {
		return OptionPut
	}
	return OptionCall
}

// InstrumentSelection is the tradable instrument resolved for a signal.
type InstrumentSelection struct {
	Mode       InstrumentMode `json:"mode"`
	ScripCode  string         `json:"scripCode,omitempty"`
	Exchange   Exchange       `json:"exchange,omitempty"`
	Strike     float64        `json:"strike,omitempty"`
	OptionType OptionType     `json:"optionType,omitempty"`
	LotSize    int            `json:"lotSize,omitempty"`
	Multiplier float64        `json:"multiplier,omitempty"`
	Premium    float64        `json:"premium,omitempty"`
	Synthetic  bool           `json:"synthetic,omitempty"` // premium estimated, no live quote
	Reason     string         `json:"reason,omitempty"`
}

// Tradable reports whether an order can be built on this selection.
func (s InstrumentSelection) Tradable() bool {
	return s.Mode == ModeOption || s.Mode == ModeFutures
}
