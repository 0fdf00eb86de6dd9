package sim

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Allocate splits total capital evenly across n instruments. Instruments are
// economically independent books, not a netted portfolio: each book keeps its
// own cash and never borrows from another.
func Allocate(total decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(n)))
}

// Combine sums independent per-instrument equity curves into one portfolio
// curve over the union of their timestamps. A series contributes its last
// known equity between its own points and zero before its first point. PnL and
// Return are recomputed on the combined curve.
func Combine(curves map[string][]EquityPoint) []EquityPoint {
	tsSet := make(map[int64]struct{})
	for _, curve := range curves {
		for _, p := range curve {
			tsSet[p.Timestamp] = struct{}{}
		}
	}
	if len(tsSet) == 0 {
		return nil
	}
	timestamps := make([]int64, 0, len(tsSet))
	for ts := range tsSet {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	// Deterministic iteration order over instruments.
	symbols := make([]string, 0, len(curves))
	for sym := range curves {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	cursor := make(map[string]int, len(curves))
	last := make(map[string]decimal.Decimal, len(curves))

	combined := make([]EquityPoint, 0, len(timestamps))
	prev := decimal.Decimal{}
	for i, ts := range timestamps {
		total := decimal.Zero
		for _, sym := range symbols {
			curve := curves[sym]
			for cursor[sym] < len(curve) && curve[cursor[sym]].Timestamp <= ts {
				last[sym] = curve[cursor[sym]].Equity
				cursor[sym]++
			}
			total = total.Add(last[sym])
		}
		point := EquityPoint{Timestamp: ts, Equity: total}
		if i > 0 {
			point.PnL = total.Sub(prev)
			if !prev.IsZero() {
				point.Return = point.PnL.Div(prev).InexactFloat64()
			}
		}
		combined = append(combined, point)
		prev = total
	}
	return combined
}
