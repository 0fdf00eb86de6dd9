// Package marketdata holds the bar-series data model shared by the simulator,
// the performance engine, and the execution analyzer.
package marketdata

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Granularity identifies the sampling cadence of a series.
type Granularity int

const (
	GranularityDaily Granularity = iota
	GranularityMinute
)

// PeriodsPerYear returns the annualization factor for the cadence:
// 252 trading days, 390 regular-session minutes per day.
func (g Granularity) PeriodsPerYear() float64 {
	switch g {
	case GranularityMinute:
		return 252 * 390
	default:
		return 252
	}
}

func (g Granularity) String() string {
	if g == GranularityMinute {
		return "minute"
	}
	return "daily"
}

// ParseGranularity maps config strings to a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "", "daily", "1d":
		return GranularityDaily, nil
	case "minute", "1m":
		return GranularityMinute, nil
	}
	return GranularityDaily, fmt.Errorf("unknown granularity %q", s)
}

// Bar is one OHLCV observation. Timestamp is epoch milliseconds UTC.
type Bar struct {
	Timestamp int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Time returns the bar timestamp as UTC time.
func (b Bar) Time() time.Time { return time.UnixMilli(b.Timestamp).UTC() }

// Series is an ordered bar sequence for one instrument.
type Series struct {
	Symbol      string
	Granularity Granularity
	Bars        []Bar
}

// ShapeError reports an input series that cannot be processed. It is fatal for
// that instrument's run but must not abort other instruments in a batch.
type ShapeError struct {
	Symbol string
	Reason string
}

func (e *ShapeError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("input shape: %s", e.Reason)
	}
	return fmt.Sprintf("input shape (%s): %s", e.Symbol, e.Reason)
}

// Normalize sorts bars by timestamp and drops duplicate timestamps, keeping the
// first occurrence. Ledger state is keyed by strictly ordered bars, so every
// consumer runs on a normalized series.
func (s *Series) Normalize() {
	if len(s.Bars) < 2 {
		return
	}
	sort.SliceStable(s.Bars, func(i, j int) bool { return s.Bars[i].Timestamp < s.Bars[j].Timestamp })
	uniq := s.Bars[:1]
	for _, b := range s.Bars[1:] {
		if b.Timestamp == uniq[len(uniq)-1].Timestamp {
			continue
		}
		uniq = append(uniq, b)
	}
	s.Bars = uniq
}

// Validate checks the series against the invariants every consumer assumes:
// non-empty, at least minLen bars, strictly increasing timestamps, and
// non-negative volume. Call Normalize first.
func (s *Series) Validate(minLen int) error {
	if len(s.Bars) == 0 {
		return &ShapeError{Symbol: s.Symbol, Reason: "empty series"}
	}
	if len(s.Bars) < minLen {
		return &ShapeError{Symbol: s.Symbol, Reason: fmt.Sprintf("%d bars, need at least %d", len(s.Bars), minLen)}
	}
	for i := 1; i < len(s.Bars); i++ {
		if s.Bars[i].Timestamp <= s.Bars[i-1].Timestamp {
			return &ShapeError{Symbol: s.Symbol, Reason: fmt.Sprintf("timestamps not strictly increasing at index %d", i)}
		}
	}
	for i, b := range s.Bars {
		if b.Volume.IsNegative() {
			return &ShapeError{Symbol: s.Symbol, Reason: fmt.Sprintf("negative volume at index %d", i)}
		}
	}
	return nil
}

// DetectGaps returns the timestamps preceding intervals longer than
// expectedStepMs. Gaps are expected (sessions, halts) and are reported, not
// repaired.
func (s *Series) DetectGaps(expectedStepMs int64) []int64 {
	var gaps []int64
	for i := 1; i < len(s.Bars); i++ {
		if s.Bars[i].Timestamp-s.Bars[i-1].Timestamp > expectedStepMs {
			gaps = append(gaps, s.Bars[i-1].Timestamp)
		}
	}
	return gaps
}

// TruncateMinute floors an epoch-ms timestamp to minute resolution.
func TruncateMinute(ts int64) int64 {
	const minuteMs = 60_000
	return ts - ts%minuteMs
}

// DateOf floors an epoch-ms timestamp to its UTC calendar date.
func DateOf(ts int64) time.Time {
	t := time.UnixMilli(ts).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
