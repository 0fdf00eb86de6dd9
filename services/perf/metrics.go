// Package perf derives return, risk, and trade-quality statistics from an
// equity/trade series, as a full-period summary or as day-by-day snapshots
// computed over an expanding window.
package perf

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/services/marketdata"
	"tradesim/services/sim"
)

// DefaultRiskFreeRate is the annual risk-free rate used for Sharpe unless the
// caller supplies another.
const DefaultRiskFreeRate = 0.02

// ErrNoData is returned when a metrics computation receives an empty series.
var ErrNoData = errors.New("perf: empty equity series")

// Params configures one metrics computation.
type Params struct {
	PeriodsPerYear float64 // 252 for daily samples, 252*390 for per-minute
	RiskFreeRate   float64
}

// Snapshot is one set of performance statistics as of a date. Ratio fields
// whose denominator can be zero are pointers: nil means undefined, never a
// sentinel number.
type Snapshot struct {
	AsOf                 time.Time
	Symbol               string
	TotalReturn          float64
	AnnualizedReturn     float64
	AnnualizedVolatility float64
	SharpeRatio          *float64
	MaxDrawdown          float64
	WinRate              *float64
	AvgWin               float64
	AvgLoss              float64
	ProfitFactor         *float64
	TradeCount           int
}

// accumulator carries the running sums that make expanding-window snapshots
// O(1) per point instead of a quadratic recompute.
type accumulator struct {
	n        int
	first    float64
	last     float64
	prev     float64
	sumRet   float64
	sumRetSq float64
	peak     float64
	minDD    float64
	wins     int
	losses   int
	winSum   float64
	lossSum  float64
	trades   int
}

// addPoint folds one equity observation in. The per-sample return at the first
// point is defined as 0, and as 0 whenever the previous equity is 0, to keep
// the return series the same length as the equity series.
func (a *accumulator) addPoint(equity float64) {
	ret := 0.0
	if a.n == 0 {
		a.first = equity
	} else if a.prev != 0 {
		ret = equity/a.prev - 1
	}
	a.sumRet += ret
	a.sumRetSq += ret * ret
	a.n++
	a.prev = equity
	a.last = equity

	if equity > a.peak {
		a.peak = equity
	}
	if a.peak > 0 {
		if dd := equity/a.peak - 1; dd < a.minDD {
			a.minDD = dd
		}
	}
}

// addTrade folds one trade event in. The trade's PnL is the equity delta at
// its bar; zero-PnL trades count toward trade_count but not win/loss tallies.
func (a *accumulator) addTrade(pnl float64) {
	a.trades++
	switch {
	case pnl > 0:
		a.wins++
		a.winSum += pnl
	case pnl < 0:
		a.losses++
		a.lossSum += pnl
	}
}

// snapshot derives statistics from the running state. periods is the L used
// for annualization: sample count for full-period summaries, distinct-date
// count for rolling daily snapshots.
func (a *accumulator) snapshot(periods float64, p Params) Snapshot {
	var s Snapshot
	if a.first != 0 {
		s.TotalReturn = a.last/a.first - 1
	}
	if periods > 0 {
		s.AnnualizedReturn = math.Pow(1+s.TotalReturn, p.PeriodsPerYear/periods) - 1
	}
	if a.n >= 2 {
		mean := a.sumRet / float64(a.n)
		variance := (a.sumRetSq - float64(a.n)*mean*mean) / float64(a.n-1)
		if variance < 0 {
			variance = 0
		}
		s.AnnualizedVolatility = math.Sqrt(variance) * math.Sqrt(p.PeriodsPerYear)
	}
	if s.AnnualizedVolatility != 0 {
		sharpe := (s.AnnualizedReturn - p.RiskFreeRate) / s.AnnualizedVolatility
		s.SharpeRatio = &sharpe
	}
	s.MaxDrawdown = a.minDD

	if decided := a.wins + a.losses; decided > 0 {
		wr := float64(a.wins) / float64(decided)
		s.WinRate = &wr
	}
	if a.wins > 0 {
		s.AvgWin = a.winSum / float64(a.wins)
	}
	if a.losses > 0 {
		s.AvgLoss = a.lossSum / float64(a.losses)
	}
	if s.AvgLoss != 0 {
		pf := -s.AvgWin / s.AvgLoss
		s.ProfitFactor = &pf
	}
	s.TradeCount = a.trades
	return s
}

// pnlByTimestamp indexes each equity point's first-difference PnL so trade
// events can be scored at their bar.
func pnlByTimestamp(equity []sim.EquityPoint) map[int64]float64 {
	m := make(map[int64]float64, len(equity))
	for _, p := range equity {
		m[p.Timestamp] = p.PnL.InexactFloat64()
	}
	return m
}

// Summary computes full-period statistics over the complete equity series and
// its trade log.
func Summary(symbol string, equity []sim.EquityPoint, trades []sim.TradeEvent, p Params) (Snapshot, error) {
	if len(equity) == 0 {
		return Snapshot{}, ErrNoData
	}
	pnlAt := pnlByTimestamp(equity)
	var acc accumulator
	for _, point := range equity {
		acc.addPoint(point.Equity.InexactFloat64())
	}
	for _, t := range trades {
		acc.addTrade(pnlAt[t.Timestamp])
	}
	s := acc.snapshot(float64(len(equity)), p)
	s.Symbol = symbol
	s.AsOf = marketdata.DateOf(equity[len(equity)-1].Timestamp)
	return s, nil
}

// Rolling computes one snapshot per distinct UTC calendar date in the equity
// series, each over all data up to and including that date. The window
// expands from the series start; annualization uses F=252 with L equal to the
// number of distinct dates seen so far, and volatility uses every sample seen
// so far. Running accumulators keep the pass linear while matching the
// expanding-window definition bar-for-bar.
func Rolling(symbol string, equity []sim.EquityPoint, trades []sim.TradeEvent, riskFree float64) ([]Snapshot, error) {
	if len(equity) == 0 {
		return nil, ErrNoData
	}
	p := Params{PeriodsPerYear: marketdata.GranularityDaily.PeriodsPerYear(), RiskFreeRate: riskFree}
	pnlAt := pnlByTimestamp(equity)

	sorted := make([]sim.TradeEvent, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	var (
		acc       accumulator
		snapshots []Snapshot
		dates     int
		tradeIdx  int
	)
	current := marketdata.DateOf(equity[0].Timestamp)
	dates = 1
	emit := func() {
		s := acc.snapshot(float64(dates), p)
		s.Symbol = symbol
		s.AsOf = current
		snapshots = append(snapshots, s)
	}
	for _, point := range equity {
		if d := marketdata.DateOf(point.Timestamp); !d.Equal(current) {
			emit()
			current = d
			dates++
		}
		acc.addPoint(point.Equity.InexactFloat64())
		for tradeIdx < len(sorted) && sorted[tradeIdx].Timestamp <= point.Timestamp {
			acc.addTrade(pnlAt[sorted[tradeIdx].Timestamp])
			tradeIdx++
		}
	}
	emit()
	return snapshots, nil
}

// ReplayEquity rebuilds an equity series from a persisted trade log: position
// is the running sum of signed shares, equity is cash remaining plus position
// marked at the trade price. This lets the metrics engine run on a re-read
// log exactly as on live simulator output.
func ReplayEquity(trades []sim.TradeEvent) ([]sim.EquityPoint, error) {
	if len(trades) == 0 {
		return nil, ErrNoData
	}
	sorted := make([]sim.TradeEvent, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	var position int64
	equity := make([]sim.EquityPoint, 0, len(sorted))
	prev := decimal.Decimal{}
	for i, t := range sorted {
		if t.Action == sim.ActionBuy {
			position += t.Shares
		} else {
			position -= t.Shares
		}
		eq := t.CashRemaining.Add(decimal.NewFromInt(position).Mul(t.Price))
		point := sim.EquityPoint{Timestamp: t.Timestamp, Equity: eq}
		if i > 0 {
			point.PnL = eq.Sub(prev)
			if !prev.IsZero() {
				point.Return = point.PnL.Div(prev).InexactFloat64()
			}
		}
		equity = append(equity, point)
		prev = eq
	}
	return equity, nil
}
