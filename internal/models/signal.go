package models

import "time"

// Signal is a directional equity-level trading signal produced upstream.
// Only the fields below are consumed; everything else on the wire is ignored.
type Signal struct {
	ID         string    `json:"id"`
	ScripCode  string    `json:"scripCode"`
	Symbol     string    `json:"symbol,omitempty"`
	Exchange   Exchange  `json:"exchange,omitempty"`
	Strategy   string    `json:"strategy,omitempty"`
	Direction  Direction `json:"direction"`
	Entry      float64   `json:"entryPrice"`
	StopLoss   float64   `json:"stopLoss,omitempty"`
	Target1    float64   `json:"target1,omitempty"`
	Target2    *float64  `json:"target2,omitempty"`
	Target3    *float64  `json:"target3,omitempty"`
	Target4    *float64  `json:"target4,omitempty"`
	Confidence float64   `json:"confidence"`
	RiskReward *float64  `json:"riskReward,omitempty"`
	ATR        float64   `json:"atr,omitempty"`
	BandUpper  float64   `json:"bandUpper,omitempty"`
	BandLower  float64   `json:"bandLower,omitempty"`

	// Derivative enrichment. A nil availability flag marks a legacy signal.
	OptionAvailable  *bool   `json:"optionAvailable,omitempty"`
	OptionScripCode  string  `json:"optionScripCode,omitempty"`
	OptionLTP        float64 `json:"optionLtp,omitempty"`
	OptionStrike     float64 `json:"optionStrike,omitempty"`
	OptionType       string  `json:"optionType,omitempty"` // CE, PE
	OptionLotSize    int     `json:"optionLotSize,omitempty"`
	OptionMultiplier float64 `json:"optionMultiplier,omitempty"`

	FuturesAvailable *bool   `json:"futuresAvailable,omitempty"`
	FuturesScripCode string  `json:"futuresScripCode,omitempty"`
	FuturesLTP       float64 `json:"futuresLtp,omitempty"`
	FuturesLotSize   int     `json:"futuresLotSize,omitempty"`

	GeneratedAt time.Time `json:"generatedAt,omitempty"`
}

// Targets returns the equity targets in order, stopping at the first missing one.
func (s *Signal) Targets() []float64 {
	if s.Target1 <= 0 {
		return nil
	}
	targets := []float64{s.Target1}
	for _, t := range []*float64{s.Target2, s.Target3, s.Target4} {
		if t == nil || *t <= 0 {
			break
		}
		targets = append(targets, *t)
	}
	return targets
}

// HasDerivativeFlags reports whether the signal carries any availability flag.
func (s *Signal) HasDerivativeFlags() bool {
	return s.OptionAvailable != nil || s.FuturesAvailable != nil
}

// HasOptionQuote reports whether a real option quote is attached.
func (s *Signal) HasOptionQuote() bool {
	return s.OptionAvailable != nil && *s.OptionAvailable && s.OptionLTP > 0
}

// HasFuturesQuote reports whether a real futures quote is attached.
func (s *Signal) HasFuturesQuote() bool {
	return s.FuturesAvailable != nil && *s.FuturesAvailable && s.FuturesLTP > 0
}

// Bool returns a pointer to b. Handy for building signals in code.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }
