package perf

import (
	"math"

	"tradesim/services/marketdata"
)

// DefaultVolWindows are the trailing windows (in samples) for the daily
// return/volatility study.
var DefaultVolWindows = []int{10, 20, 30, 90, 120, 252}

// DailyPoint is one row of the daily study: per-sample return, cumulative
// return since series start, and trailing annualized volatility per window.
// A window is absent from Volatility until it has filled.
type DailyPoint struct {
	Timestamp        int64
	Return           float64
	CumulativeReturn float64
	Volatility       map[int]float64
}

// DailyStudy computes close-to-close returns, the compounded cumulative
// return, and trailing annualized volatility over each requested window.
// Unlike the expanding snapshots in Rolling, these windows trail: each
// volatility uses only the most recent w returns.
func DailyStudy(series *marketdata.Series, windows []int) ([]DailyPoint, error) {
	if len(series.Bars) == 0 {
		return nil, ErrNoData
	}
	if len(windows) == 0 {
		windows = DefaultVolWindows
	}
	annualize := math.Sqrt(marketdata.GranularityDaily.PeriodsPerYear())

	closes := make([]float64, len(series.Bars))
	for i, b := range series.Bars {
		closes[i] = b.Close.InexactFloat64()
	}

	// Returns start at index 1; index 0 has no prior close.
	returns := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			returns[i] = closes[i]/closes[i-1] - 1
		}
	}

	type windowState struct {
		w     int
		sum   float64
		sumSq float64
	}
	states := make([]windowState, len(windows))
	for i, w := range windows {
		states[i] = windowState{w: w}
	}

	points := make([]DailyPoint, len(closes))
	cum := 1.0
	for i := range closes {
		if i > 0 {
			cum *= 1 + returns[i]
		}
		point := DailyPoint{
			Timestamp:        series.Bars[i].Timestamp,
			Return:           returns[i],
			CumulativeReturn: cum - 1,
			Volatility:       make(map[int]float64, len(windows)),
		}
		for si := range states {
			st := &states[si]
			if i >= 1 {
				st.sum += returns[i]
				st.sumSq += returns[i] * returns[i]
			}
			if i > st.w {
				old := returns[i-st.w]
				st.sum -= old
				st.sumSq -= old * old
			}
			// Window fills once w returns exist, i.e. from index w onward.
			if i >= st.w && st.w >= 2 {
				n := float64(st.w)
				mean := st.sum / n
				variance := (st.sumSq - n*mean*mean) / (n - 1)
				if variance < 0 {
					variance = 0
				}
				point.Volatility[st.w] = math.Sqrt(variance) * annualize
			}
		}
		points[i] = point
	}
	return points, nil
}
