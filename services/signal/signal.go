// Package signal derives position intents from a bar series using a fast/slow
// moving-average comparison. Generation is a pure function of the input bars.
package signal

import (
	"fmt"

	"tradesim/services/marketdata"
)

const (
	DefaultFastWindow = 5
	DefaultSlowWindow = 20
)

// Config holds the rolling-window sizes.
type Config struct {
	FastWindow int
	SlowWindow int
}

// Default returns the stock 5/20 crossover configuration.
func Default() Config {
	return Config{FastWindow: DefaultFastWindow, SlowWindow: DefaultSlowWindow}
}

func (c Config) validate() error {
	if c.FastWindow <= 0 || c.SlowWindow <= 0 {
		return fmt.Errorf("signal windows must be positive, got fast=%d slow=%d", c.FastWindow, c.SlowWindow)
	}
	if c.FastWindow >= c.SlowWindow {
		return fmt.Errorf("fast window %d must be shorter than slow window %d", c.FastWindow, c.SlowWindow)
	}
	return nil
}

// Sample is the signal state at one bar. Fast, Slow, and Raw are meaningful
// only when Valid is true; leading samples stay invalid until the slow window
// has filled.
type Sample struct {
	Timestamp  int64
	Fast       float64
	Slow       float64
	Valid      bool
	Raw        int // 1 when fast mean > slow mean, else 0; ties resolve to 0
	Transition int // first difference of Raw; 0 at the first valid sample
}

// Generate computes one Sample per input bar. Each rolling mean at index i uses
// only closes at or before i, so replaying any prefix of the series yields
// identical earlier samples.
func Generate(series *marketdata.Series, cfg Config) ([]Sample, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(series.Bars) <= cfg.SlowWindow {
		return nil, &marketdata.ShapeError{
			Symbol: series.Symbol,
			Reason: fmt.Sprintf("%d bars, need more than slow window %d", len(series.Bars), cfg.SlowWindow),
		}
	}

	closes := make([]float64, len(series.Bars))
	for i, b := range series.Bars {
		closes[i] = b.Close.InexactFloat64()
	}

	samples := make([]Sample, len(series.Bars))
	var fastSum, slowSum float64
	prevRaw := 0
	seen := false
	for i, c := range closes {
		fastSum += c
		slowSum += c
		if i >= cfg.FastWindow {
			fastSum -= closes[i-cfg.FastWindow]
		}
		if i >= cfg.SlowWindow {
			slowSum -= closes[i-cfg.SlowWindow]
		}

		s := Sample{Timestamp: series.Bars[i].Timestamp}
		if i >= cfg.SlowWindow-1 {
			s.Fast = fastSum / float64(cfg.FastWindow)
			s.Slow = slowSum / float64(cfg.SlowWindow)
			s.Valid = true
			if s.Fast > s.Slow {
				s.Raw = 1
			}
			if seen {
				s.Transition = s.Raw - prevRaw
			}
			prevRaw = s.Raw
			seen = true
		}
		samples[i] = s
	}
	return samples, nil
}
