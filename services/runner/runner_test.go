package runner

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"tradesim/services/marketdata"
	"tradesim/services/signal"
)

func syntheticSeries(symbol string) *marketdata.Series {
	// Flat warmup, a ramp to force an entry, then a slide to force the exit.
	closes := make([]float64, 0, 60)
	for i := 0; i < 25; i++ {
		closes = append(closes, 100)
	}
	for i := 0; i < 10; i++ {
		closes = append(closes, 100+float64(i+1)*3)
	}
	for i := 0; i < 15; i++ {
		closes = append(closes, 90)
	}
	s := &marketdata.Series{Symbol: symbol, Granularity: marketdata.GranularityDaily}
	for i, c := range closes {
		d := decimal.NewFromFloat(c)
		s.Bars = append(s.Bars, marketdata.Bar{
			Timestamp: int64(i) * 86_400_000,
			Open:      d, High: d, Low: d, Close: d,
			Volume: decimal.NewFromInt(1000),
		})
	}
	return s
}

func testSource(failing map[string]bool) BarSource {
	return BarSourceFunc(func(_ context.Context, symbol string) (*marketdata.Series, error) {
		if failing[symbol] {
			return nil, fmt.Errorf("no data for %s", symbol)
		}
		return syntheticSeries(symbol), nil
	})
}

func TestRunSimulatesEverySymbol(t *testing.T) {
	symbols := []string{"AAPL", "MSFT", "GOOG"}
	batch := Run(context.Background(), testSource(nil), symbols, Options{
		Signal:         signal.Default(),
		InitialCapital: decimal.NewFromInt(300_000),
		RiskFreeRate:   0.02,
		Workers:        2,
	}, nil, nil)

	if batch.JobID == "" {
		t.Fatal("batch must carry a job id")
	}
	if len(batch.Runs) != len(symbols) {
		t.Fatalf("expected %d runs, got %d", len(symbols), len(batch.Runs))
	}
	for i, run := range batch.Runs {
		if run.Symbol != symbols[i] {
			t.Fatalf("run %d out of request order: %s", i, run.Symbol)
		}
		if run.Err != nil {
			t.Fatalf("%s: %v", run.Symbol, run.Err)
		}
		if len(run.Trades) == 0 {
			t.Fatalf("%s: ramp fixture should produce trades", run.Symbol)
		}
		if run.Summary == nil {
			t.Fatalf("%s: missing summary", run.Symbol)
		}
	}
	if len(batch.Combined) == 0 {
		t.Fatal("combined curve missing")
	}
	// Identical books: the combined curve is three times one book.
	one := batch.Runs[0].Equity
	if len(batch.Combined) != len(one) {
		t.Fatalf("combined length %d, book length %d", len(batch.Combined), len(one))
	}
	for i := range one {
		want := one[i].Equity.Mul(decimal.NewFromInt(3))
		if !batch.Combined[i].Equity.Equal(want) {
			t.Fatalf("point %d: combined %s, want %s", i, batch.Combined[i].Equity, want)
		}
	}
}

func TestRunIsolatesSymbolFailures(t *testing.T) {
	symbols := []string{"AAPL", "BROKEN", "MSFT"}
	batch := Run(context.Background(), testSource(map[string]bool{"BROKEN": true}), symbols, Options{
		Signal:         signal.Default(),
		InitialCapital: decimal.NewFromInt(300_000),
		Workers:        3,
	}, nil, nil)

	if len(batch.Runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(batch.Runs))
	}
	if batch.Runs[1].Err == nil {
		t.Fatal("broken symbol should carry its error")
	}
	if batch.Runs[0].Err != nil || batch.Runs[2].Err != nil {
		t.Fatal("healthy symbols must be unaffected by a failing one")
	}
	if len(batch.Combined) == 0 {
		t.Fatal("combined curve should still cover the healthy books")
	}
}

func TestRunDeterministicAcrossWorkerCounts(t *testing.T) {
	symbols := []string{"A", "B", "C", "D"}
	opts := func(workers int) Options {
		return Options{
			Signal:         signal.Default(),
			InitialCapital: decimal.NewFromInt(400_000),
			Workers:        workers,
		}
	}
	serial := Run(context.Background(), testSource(nil), symbols, opts(1), nil, nil)
	parallel := Run(context.Background(), testSource(nil), symbols, opts(4), nil, nil)

	for i := range serial.Runs {
		a, b := serial.Runs[i], parallel.Runs[i]
		if a.Symbol != b.Symbol || len(a.Trades) != len(b.Trades) {
			t.Fatalf("run %d differs across worker counts", i)
		}
		for j := range a.Trades {
			if !a.Trades[j].CashRemaining.Equal(b.Trades[j].CashRemaining) {
				t.Fatalf("trade %d/%d differs across worker counts", i, j)
			}
		}
	}
	for i := range serial.Combined {
		if !serial.Combined[i].Equity.Equal(parallel.Combined[i].Equity) {
			t.Fatalf("combined point %d differs across worker counts", i)
		}
	}
}

func TestRunShortSeriesFailsThatSymbolOnly(t *testing.T) {
	short := BarSourceFunc(func(_ context.Context, symbol string) (*marketdata.Series, error) {
		s := syntheticSeries(symbol)
		if symbol == "SHORT" {
			s.Bars = s.Bars[:5]
		}
		return s, nil
	})
	batch := Run(context.Background(), short, []string{"SHORT", "OK"}, Options{
		Signal:         signal.Default(),
		InitialCapital: decimal.NewFromInt(200_000),
		Workers:        1,
	}, nil, nil)
	if batch.Runs[0].Err == nil {
		t.Fatal("short series must fail validation")
	}
	if batch.Runs[1].Err != nil {
		t.Fatalf("healthy symbol failed: %v", batch.Runs[1].Err)
	}
}
