package perf

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/services/sim"
)

func dayTS(day int) int64 {
	return time.Date(2024, 1, 1+day, 16, 0, 0, 0, time.UTC).UnixMilli()
}

func equityCurve(values ...int64) []sim.EquityPoint {
	points := make([]sim.EquityPoint, len(values))
	prev := decimal.Decimal{}
	for i, v := range values {
		eq := decimal.NewFromInt(v)
		points[i] = sim.EquityPoint{Timestamp: dayTS(i), Equity: eq}
		if i > 0 {
			points[i].PnL = eq.Sub(prev)
			if !prev.IsZero() {
				points[i].Return = points[i].PnL.Div(prev).InexactFloat64()
			}
		}
		prev = eq
	}
	return points
}

func approx(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Fatalf("%s: got %v, want %v", name, got, want)
	}
}

func TestSummaryEmptySeries(t *testing.T) {
	if _, err := Summary("X", nil, nil, Params{PeriodsPerYear: 252}); err != ErrNoData {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestSummaryRoundTripFromTradeLog(t *testing.T) {
	// BUY 300 @ 100 leaving 70000 cash, SELL 300 @ 110 leaving 103000 cash.
	trades := []sim.TradeEvent{
		{Symbol: "AAPL", Timestamp: dayTS(0), Action: sim.ActionBuy, Price: decimal.NewFromInt(100), Shares: 300, CashRemaining: decimal.NewFromInt(70_000)},
		{Symbol: "AAPL", Timestamp: dayTS(1), Action: sim.ActionSell, Price: decimal.NewFromInt(110), Shares: 300, CashRemaining: decimal.NewFromInt(103_000)},
	}
	equity, err := ReplayEquity(trades)
	if err != nil {
		t.Fatal(err)
	}
	if !equity[0].Equity.Equal(decimal.NewFromInt(100_000)) {
		t.Fatalf("equity after buy: %s", equity[0].Equity)
	}
	if !equity[1].Equity.Equal(decimal.NewFromInt(103_000)) {
		t.Fatalf("equity after sell: %s", equity[1].Equity)
	}

	s, err := Summary("AAPL", equity, trades, Params{PeriodsPerYear: 252, RiskFreeRate: DefaultRiskFreeRate})
	if err != nil {
		t.Fatal(err)
	}
	approx(t, "total return", s.TotalReturn, 0.03, 1e-12)
	if s.MaxDrawdown != 0 {
		t.Fatalf("non-decreasing equity must have zero drawdown, got %v", s.MaxDrawdown)
	}
	if s.TradeCount != 2 {
		t.Fatalf("trade count: %d", s.TradeCount)
	}
	// The buy lands at the first equity point (pnl 0, undecided); the sell's
	// bar carries +3000.
	if s.WinRate == nil {
		t.Fatal("win rate should be defined with one decided trade")
	}
	approx(t, "win rate", *s.WinRate, 1.0, 1e-12)
	approx(t, "avg win", s.AvgWin, 3000, 1e-9)
	if s.ProfitFactor != nil {
		t.Fatal("profit factor must be nil without losses")
	}
}

func TestSummaryFlatEquityLeavesRatiosNil(t *testing.T) {
	equity := equityCurve(1000, 1000, 1000, 1000)
	s, err := Summary("X", equity, nil, Params{PeriodsPerYear: 252, RiskFreeRate: 0.02})
	if err != nil {
		t.Fatal(err)
	}
	if s.AnnualizedVolatility != 0 {
		t.Fatalf("flat curve volatility: %v", s.AnnualizedVolatility)
	}
	if s.SharpeRatio != nil {
		t.Fatal("sharpe must be nil when volatility is zero")
	}
	if s.WinRate != nil {
		t.Fatal("win rate must be nil with no trades")
	}
	if s.TotalReturn != 0 || s.MaxDrawdown != 0 {
		t.Fatalf("flat curve: total=%v dd=%v", s.TotalReturn, s.MaxDrawdown)
	}
}

func TestMaxDrawdown(t *testing.T) {
	equity := equityCurve(1000, 1200, 900, 1100, 800)
	s, err := Summary("X", equity, nil, Params{PeriodsPerYear: 252})
	if err != nil {
		t.Fatal(err)
	}
	// Peak 1200, trough 800.
	approx(t, "max drawdown", s.MaxDrawdown, 800.0/1200.0-1, 1e-12)
	if s.MaxDrawdown > 0 {
		t.Fatal("drawdown must never be positive")
	}
}

func TestSummaryVolatilityMatchesSampleStdev(t *testing.T) {
	equity := equityCurve(1000, 1100, 1050, 1150)
	s, err := Summary("X", equity, nil, Params{PeriodsPerYear: 252})
	if err != nil {
		t.Fatal(err)
	}
	rets := []float64{0, 0.1, 1050.0/1100.0 - 1, 1150.0/1050.0 - 1}
	var sum float64
	for _, r := range rets {
		sum += r
	}
	mean := sum / float64(len(rets))
	var ss float64
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	want := math.Sqrt(ss/float64(len(rets)-1)) * math.Sqrt(252)
	approx(t, "annualized volatility", s.AnnualizedVolatility, want, 1e-12)
}

func TestWinRateAndProfitFactor(t *testing.T) {
	equity := equityCurve(1000, 1100, 1040, 1040)
	trades := []sim.TradeEvent{
		{Timestamp: dayTS(1), Action: sim.ActionBuy, Price: decimal.NewFromInt(10), Shares: 1},  // pnl +100
		{Timestamp: dayTS(2), Action: sim.ActionSell, Price: decimal.NewFromInt(10), Shares: 1}, // pnl -60
		{Timestamp: dayTS(3), Action: sim.ActionBuy, Price: decimal.NewFromInt(10), Shares: 1},  // pnl 0, undecided
	}
	s, err := Summary("X", equity, trades, Params{PeriodsPerYear: 252})
	if err != nil {
		t.Fatal(err)
	}
	if s.TradeCount != 3 {
		t.Fatalf("trade count: %d", s.TradeCount)
	}
	if s.WinRate == nil || s.ProfitFactor == nil {
		t.Fatal("expected defined win rate and profit factor")
	}
	approx(t, "win rate", *s.WinRate, 0.5, 1e-12)
	approx(t, "avg win", s.AvgWin, 100, 1e-9)
	approx(t, "avg loss", s.AvgLoss, -60, 1e-9)
	approx(t, "profit factor", *s.ProfitFactor, 100.0/60.0, 1e-12)
}

// naiveSnapshot recomputes expanding-window statistics from scratch over an
// equity prefix, the way the incremental accumulator is defined to behave.
func naiveSnapshot(equity []sim.EquityPoint, dates int, p Params) (totalRet, annRet, vol, dd float64, sharpe *float64) {
	first := equity[0].Equity.InexactFloat64()
	last := equity[len(equity)-1].Equity.InexactFloat64()
	if first != 0 {
		totalRet = last/first - 1
	}
	annRet = math.Pow(1+totalRet, p.PeriodsPerYear/float64(dates)) - 1

	rets := make([]float64, len(equity))
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity.InexactFloat64()
		if prev != 0 {
			rets[i] = equity[i].Equity.InexactFloat64()/prev - 1
		}
	}
	if len(rets) >= 2 {
		var sum float64
		for _, r := range rets {
			sum += r
		}
		mean := sum / float64(len(rets))
		var ss float64
		for _, r := range rets {
			ss += (r - mean) * (r - mean)
		}
		vol = math.Sqrt(ss/float64(len(rets)-1)) * math.Sqrt(p.PeriodsPerYear)
	}
	peak := math.Inf(-1)
	for _, pt := range equity {
		eq := pt.Equity.InexactFloat64()
		if eq > peak {
			peak = eq
		}
		if peak > 0 {
			if d := eq/peak - 1; d < dd {
				dd = d
			}
		}
	}
	if vol != 0 {
		s := (annRet - p.RiskFreeRate) / vol
		sharpe = &s
	}
	return
}

func TestRollingMatchesNaiveExpandingRecompute(t *testing.T) {
	// Three calendar dates, two intraday points each.
	values := []int64{1000, 1010, 990, 1020, 1015, 1040}
	equity := make([]sim.EquityPoint, len(values))
	for i, v := range values {
		day := i / 2
		ts := time.Date(2024, 2, 5+day, 10+6*(i%2), 0, 0, 0, time.UTC).UnixMilli()
		equity[i] = sim.EquityPoint{Timestamp: ts, Equity: decimal.NewFromInt(v)}
	}

	snapshots, err := Rolling("X", equity, nil, 0.02)
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshots) != 3 {
		t.Fatalf("expected one snapshot per distinct date, got %d", len(snapshots))
	}

	p := Params{PeriodsPerYear: 252, RiskFreeRate: 0.02}
	for di, snap := range snapshots {
		prefix := equity[:(di+1)*2]
		totalRet, annRet, vol, dd, sharpe := naiveSnapshot(prefix, di+1, p)
		approx(t, "total return", snap.TotalReturn, totalRet, 1e-10)
		approx(t, "annualized return", snap.AnnualizedReturn, annRet, 1e-10)
		approx(t, "volatility", snap.AnnualizedVolatility, vol, 1e-10)
		approx(t, "max drawdown", snap.MaxDrawdown, dd, 1e-10)
		if (snap.SharpeRatio == nil) != (sharpe == nil) {
			t.Fatalf("snapshot %d: sharpe definedness mismatch", di)
		}
		if sharpe != nil {
			approx(t, "sharpe", *snap.SharpeRatio, *sharpe, 1e-10)
		}
	}
}

func TestRollingSnapshotDates(t *testing.T) {
	equity := equityCurve(1000, 1010, 1020)
	snapshots, err := Rolling("X", equity, nil, 0.02)
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshots) != 3 {
		t.Fatalf("expected 3 daily snapshots, got %d", len(snapshots))
	}
	for i, snap := range snapshots {
		want := time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC)
		if !snap.AsOf.Equal(want) {
			t.Fatalf("snapshot %d: as-of %v, want %v", i, snap.AsOf, want)
		}
	}
	// The last snapshot covers the whole series, so it must equal the summary.
	full, err := Summary("X", equity, nil, Params{PeriodsPerYear: 252, RiskFreeRate: 0.02})
	if err != nil {
		t.Fatal(err)
	}
	lastSnap := snapshots[len(snapshots)-1]
	approx(t, "final total return", lastSnap.TotalReturn, full.TotalReturn, 1e-12)
	approx(t, "final volatility", lastSnap.AnnualizedVolatility, full.AnnualizedVolatility, 1e-12)
}

func TestReplayEquitySortsByTimestamp(t *testing.T) {
	trades := []sim.TradeEvent{
		{Timestamp: dayTS(1), Action: sim.ActionSell, Price: decimal.NewFromInt(12), Shares: 10, CashRemaining: decimal.NewFromInt(120)},
		{Timestamp: dayTS(0), Action: sim.ActionBuy, Price: decimal.NewFromInt(10), Shares: 10, CashRemaining: decimal.Zero},
	}
	equity, err := ReplayEquity(trades)
	if err != nil {
		t.Fatal(err)
	}
	if equity[0].Timestamp != dayTS(0) {
		t.Fatal("replay must order events by timestamp")
	}
	if !equity[0].Equity.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("equity after buy: %s", equity[0].Equity)
	}
	if !equity[1].Equity.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("equity after sell: %s", equity[1].Equity)
	}
	if _, err := ReplayEquity(nil); err != ErrNoData {
		t.Fatalf("expected ErrNoData for empty log, got %v", err)
	}
}
