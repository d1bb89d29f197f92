package engine

import (
	"strings"
)

// Strategy tags emitted by the upstream signal services.
const (
	StrategyPattern    = "PATTERN"
	StrategyMomentum   = "MOMENTUM"
	StrategyVolume     = "VOLUME"
	StrategyRegime     = "REGIME"
	StrategyConfluence = "CONFLUENCE"
)

// Profile adapts one strategy's signals to the shared engine. Strategies
// differ only in how confidence is scaled and how fallback levels are laid
// out; everything downstream is common.
type Profile struct {
	Name            string    `mapstructure:"name"`
	ConfidenceScale float64   `mapstructure:"confidence_scale"` // 1 for 0-1 scores, 100 for 0-100
	StopMultiple    float64   `mapstructure:"stop_multiple"`
	TargetMultiples []float64 `mapstructure:"target_multiples"`
	PartialClosePct float64   `mapstructure:"partial_close_pct"`
	TrailPercent    float64   `mapstructure:"trail_percent"`
}

// NormalizeConfidence maps a raw score onto the 0-100 scale used by sizing.
func (p Profile) NormalizeConfidence(raw float64) float64 {
	scale := p.ConfidenceScale
	if scale <= 0 {
		scale = 100
	}
	c := raw * 100 / scale
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}

// DefaultProfiles returns the built-in strategy profiles keyed by tag.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		StrategyPattern: {
			Name:            StrategyPattern,
			ConfidenceScale: 100,
			StopMultiple:    1.5,
			TargetMultiples: []float64{2, 3},
			PartialClosePct: 50,
		},
		StrategyMomentum: {
			Name:            StrategyMomentum,
			ConfidenceScale: 100,
			StopMultiple:    2,
			TargetMultiples: []float64{2, 3, 4, 5},
			PartialClosePct: 50,
			TrailPercent:    1.5,
		},
		StrategyVolume: {
			Name:            StrategyVolume,
			ConfidenceScale: 1,
			StopMultiple:    1.5,
			TargetMultiples: []float64{2, 3},
			PartialClosePct: 50,
		},
		StrategyRegime: {
			Name:            StrategyRegime,
			ConfidenceScale: 1,
			StopMultiple:    2,
			TargetMultiples: []float64{2, 3, 4, 5},
			PartialClosePct: 33,
			TrailPercent:    2,
		},
		StrategyConfluence: {
			Name:            StrategyConfluence,
			ConfidenceScale: 100,
			StopMultiple:    1.5,
			TargetMultiples: []float64{2, 3, 4, 5},
			PartialClosePct: 50,
		},
	}
}

// ProfileFor looks up a profile by tag, falling back to CONFLUENCE for
// unknown or empty tags.
func ProfileFor(profiles map[string]Profile, tag string) Profile {
	if p, ok := profiles[strings.ToUpper(strings.TrimSpace(tag))]; ok {
		return p
	}
	if p, ok := profiles[StrategyConfluence]; ok {
		return p
	}
	return DefaultProfiles()[StrategyConfluence]
}
