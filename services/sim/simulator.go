// Package sim replays a bar series against its signal sequence, maintaining a
// long-only cash/shares ledger and emitting a trade log plus an equity curve.
package sim

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradesim/services/marketdata"
	"tradesim/services/signal"
)

// Action labels a trade event.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// TradeEvent is an executed fill, immutable once emitted.
type TradeEvent struct {
	Symbol        string
	Timestamp     int64
	Action        Action
	Price         decimal.Decimal
	Shares        int64
	CashRemaining decimal.Decimal
}

// EquityPoint marks the book value at one bar: equity = cash + shares*close.
// PnL is the first difference of equity (zero at the series start); Return is
// the percentage change (zero at the start and whenever previous equity is 0).
type EquityPoint struct {
	Timestamp int64
	Equity    decimal.Decimal
	PnL       decimal.Decimal
	Return    float64
}

// Ledger is the simulator's internal cash/shares state.
type Ledger struct {
	Cash   decimal.Decimal
	Shares int64
}

// Equity marks the ledger to the given price.
func (l Ledger) Equity(price decimal.Decimal) decimal.Decimal {
	return l.Cash.Add(decimal.NewFromInt(l.Shares).Mul(price))
}

// Result bundles one instrument's simulation output.
type Result struct {
	Symbol string
	Trades []TradeEvent
	Equity []EquityPoint
}

// Run replays the series in timestamp order as a strict left-fold over the
// ledger. On an entry transition with cash on hand it buys floor(cash/price)
// whole shares; on an exit transition it liquidates the full position. Every
// bar appends an equity point, traded or not.
//
// The series must be normalized and samples must pair one-to-one with bars.
// Negative seed capital is a configuration error.
func Run(series *marketdata.Series, samples []signal.Sample, initialCash decimal.Decimal) (*Result, error) {
	if initialCash.IsNegative() {
		return nil, fmt.Errorf("initial cash must be non-negative, got %s", initialCash)
	}
	if len(samples) != len(series.Bars) {
		return nil, fmt.Errorf("signal/bar length mismatch: %d samples, %d bars", len(samples), len(series.Bars))
	}
	if err := series.Validate(1); err != nil {
		return nil, err
	}

	ledger := Ledger{Cash: initialCash}
	res := &Result{Symbol: series.Symbol}
	prevEquity := decimal.Decimal{}
	for i, bar := range series.Bars {
		price := bar.Close
		sample := samples[i]
		if sample.Timestamp != bar.Timestamp {
			return nil, fmt.Errorf("signal/bar timestamp mismatch at index %d", i)
		}

		switch {
		case sample.Valid && sample.Transition == 1 && ledger.Cash.IsPositive():
			shares := ledger.Cash.Div(price).Floor().IntPart()
			if shares > 0 {
				ledger.Cash = ledger.Cash.Sub(decimal.NewFromInt(shares).Mul(price))
				ledger.Shares += shares
				res.Trades = append(res.Trades, TradeEvent{
					Symbol:        series.Symbol,
					Timestamp:     bar.Timestamp,
					Action:        ActionBuy,
					Price:         price,
					Shares:        shares,
					CashRemaining: ledger.Cash,
				})
			}
		case sample.Valid && sample.Transition == -1 && ledger.Shares > 0:
			ledger.Cash = ledger.Cash.Add(decimal.NewFromInt(ledger.Shares).Mul(price))
			res.Trades = append(res.Trades, TradeEvent{
				Symbol:        series.Symbol,
				Timestamp:     bar.Timestamp,
				Action:        ActionSell,
				Price:         price,
				Shares:        ledger.Shares,
				CashRemaining: ledger.Cash,
			})
			ledger.Shares = 0
		}

		equity := ledger.Equity(price)
		point := EquityPoint{Timestamp: bar.Timestamp, Equity: equity}
		if i > 0 {
			point.PnL = equity.Sub(prevEquity)
			if !prevEquity.IsZero() {
				point.Return = point.PnL.Div(prevEquity).InexactFloat64()
			}
		}
		res.Equity = append(res.Equity, point)
		prevEquity = equity
	}
	return res, nil
}
