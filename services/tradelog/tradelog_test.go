package tradelog

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/services/perf"
	"tradesim/services/sim"
)

func sampleTrades() []sim.TradeEvent {
	buyTS := time.Date(2024, 6, 3, 16, 0, 0, 0, time.UTC).UnixMilli()
	sellTS := time.Date(2024, 6, 4, 16, 0, 0, 0, time.UTC).UnixMilli()
	return []sim.TradeEvent{
		{Symbol: "AAPL", Timestamp: buyTS, Action: sim.ActionBuy, Price: decimal.RequireFromString("100.25"), Shares: 300, CashRemaining: decimal.RequireFromString("69925")},
		{Symbol: "AAPL", Timestamp: sellTS, Action: sim.ActionSell, Price: decimal.RequireFromString("110.5"), Shares: 300, CashRemaining: decimal.RequireFromString("103075")},
	}
}

func TestRoundTripIsLossless(t *testing.T) {
	trades := sampleTrades()
	var buf bytes.Buffer
	if err := Write(&buf, trades); err != nil {
		t.Fatal(err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(trades) {
		t.Fatalf("round trip lost trades: %d vs %d", len(got), len(trades))
	}
	for i := range trades {
		want := trades[i]
		have := got[i]
		if have.Symbol != want.Symbol || have.Timestamp != want.Timestamp || have.Action != want.Action || have.Shares != want.Shares {
			t.Fatalf("trade %d mismatch: %+v vs %+v", i, have, want)
		}
		if !have.Price.Equal(want.Price) || !have.CashRemaining.Equal(want.CashRemaining) {
			t.Fatalf("trade %d decimal mismatch: %+v vs %+v", i, have, want)
		}
	}
}

func TestRoundTripPreservesMetrics(t *testing.T) {
	trades := sampleTrades()
	var buf bytes.Buffer
	if err := Write(&buf, trades); err != nil {
		t.Fatal(err)
	}
	reread, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}

	p := perf.Params{PeriodsPerYear: 252, RiskFreeRate: perf.DefaultRiskFreeRate}
	orig := mustSummary(t, trades, p)
	replayed := mustSummary(t, reread, p)
	if orig.TotalReturn != replayed.TotalReturn ||
		orig.AnnualizedVolatility != replayed.AnnualizedVolatility ||
		orig.MaxDrawdown != replayed.MaxDrawdown ||
		orig.TradeCount != replayed.TradeCount {
		t.Fatalf("metrics drifted across round trip: %+v vs %+v", orig, replayed)
	}
}

func mustSummary(t *testing.T, trades []sim.TradeEvent, p perf.Params) perf.Snapshot {
	t.Helper()
	equity, err := perf.ReplayEquity(trades)
	if err != nil {
		t.Fatal(err)
	}
	s, err := perf.Summary("AAPL", equity, trades, p)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestReadRejectsMalformedRows(t *testing.T) {
	cases := []struct {
		name string
		csv  string
	}{
		{"unknown action", "Symbol,Datetime,Action,Price,Shares,Cash_Remaining\nAAPL,2024-06-03 16:00:00,HOLD,100,10,0\n"},
		{"bad datetime", "Symbol,Datetime,Action,Price,Shares,Cash_Remaining\nAAPL,junk,BUY,100,10,0\n"},
		{"bad price", "Symbol,Datetime,Action,Price,Shares,Cash_Remaining\nAAPL,2024-06-03 16:00:00,BUY,abc,10,0\n"},
		{"negative shares", "Symbol,Datetime,Action,Price,Shares,Cash_Remaining\nAAPL,2024-06-03 16:00:00,BUY,100,-10,0\n"},
		{"short row", "Symbol,Datetime,Action,Price,Shares,Cash_Remaining\nAAPL,2024-06-03 16:00:00,BUY\n"},
	}
	for _, tc := range cases {
		if _, err := Read(strings.NewReader(tc.csv)); err == nil {
			t.Fatalf("%s: expected parse error", tc.name)
		}
	}
}

func TestReadAcceptsRFC3339Datetimes(t *testing.T) {
	csv := "Symbol,Datetime,Action,Price,Shares,Cash_Remaining\nAAPL,2024-06-03T16:00:00Z,BUY,100,10,9000\n"
	trades, err := Read(strings.NewReader(csv))
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 6, 3, 16, 0, 0, 0, time.UTC).UnixMilli()
	if trades[0].Timestamp != want {
		t.Fatalf("timestamp: %d want %d", trades[0].Timestamp, want)
	}
}

func TestWriteEquityEmitsOneRowPerPoint(t *testing.T) {
	curve := []sim.EquityPoint{
		{Timestamp: time.Date(2024, 6, 3, 16, 0, 0, 0, time.UTC).UnixMilli(), Equity: decimal.NewFromInt(100_000)},
		{Timestamp: time.Date(2024, 6, 4, 16, 0, 0, 0, time.UTC).UnixMilli(), Equity: decimal.NewFromInt(103_000), PnL: decimal.NewFromInt(3000), Return: 0.03},
	}
	var buf bytes.Buffer
	if err := WriteEquity(&buf, "PORTFOLIO", curve); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[1], "PORTFOLIO,2024-06-03 16:00:00,100000,") {
		t.Fatalf("unexpected first row: %q", lines[1])
	}
}
