// Package runner executes a simulation batch across a symbol universe. Each
// instrument is an independent book, so symbols fan out to a worker pool; bar
// processing inside one symbol stays strictly sequential.
package runner

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradesim/services/marketdata"
	"tradesim/services/monitoring"
	"tradesim/services/perf"
	"tradesim/services/signal"
	"tradesim/services/sim"
)

// BarSource supplies one instrument's bar series. Implementations exist for
// CSV files and ClickHouse.
type BarSource interface {
	Bars(ctx context.Context, symbol string) (*marketdata.Series, error)
}

// BarSourceFunc adapts a function to the BarSource interface.
type BarSourceFunc func(ctx context.Context, symbol string) (*marketdata.Series, error)

func (f BarSourceFunc) Bars(ctx context.Context, symbol string) (*marketdata.Series, error) {
	return f(ctx, symbol)
}

// Options configures one batch.
type Options struct {
	Signal         signal.Config
	InitialCapital decimal.Decimal // shared pool, split evenly across symbols
	RiskFreeRate   float64
	Workers        int // <= 0 means NumCPU
}

// SymbolRun is one instrument's outcome. Err is set when that instrument
// failed; the rest of the batch is unaffected.
type SymbolRun struct {
	Symbol  string
	Err     error
	Trades  []sim.TradeEvent
	Equity  []sim.EquityPoint
	Summary *perf.Snapshot
}

// Batch is the result of a universe run.
type Batch struct {
	JobID    string
	Runs     []SymbolRun
	Combined []sim.EquityPoint // elementwise sum of successful books
}

// Run simulates every symbol and summarizes each book. Failures are recorded
// per symbol and never abort the batch.
func Run(ctx context.Context, source BarSource, symbols []string, opts Options, logger *zap.Logger, metrics *monitoring.Metrics) *Batch {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(symbols) {
		workers = len(symbols)
	}
	capital := sim.Allocate(opts.InitialCapital, len(symbols))

	batch := &Batch{JobID: uuid.New().String()}
	logger.Info("starting batch",
		zap.String("job_id", batch.JobID),
		zap.Int("symbols", len(symbols)),
		zap.Int("workers", workers),
		zap.String("capital_per_symbol", capital.String()),
	)

	jobs := make(chan string)
	results := make(chan SymbolRun, len(symbols))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				results <- runSymbol(ctx, source, symbol, capital, opts, metrics)
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, symbol := range symbols {
			select {
			case jobs <- symbol:
			case <-ctx.Done():
				return
			}
		}
	}()
	wg.Wait()
	close(results)

	bySymbol := make(map[string]SymbolRun, len(symbols))
	for run := range results {
		bySymbol[run.Symbol] = run
	}
	curves := make(map[string][]sim.EquityPoint)
	for _, symbol := range symbols { // preserve request order
		run, ok := bySymbol[symbol]
		if !ok {
			continue // cancelled before dispatch
		}
		batch.Runs = append(batch.Runs, run)
		if run.Err != nil {
			logger.Warn("symbol failed", zap.String("job_id", batch.JobID), zap.String("symbol", symbol), zap.Error(run.Err))
			continue
		}
		curves[symbol] = run.Equity
	}
	batch.Combined = sim.Combine(curves)
	return batch
}

func runSymbol(ctx context.Context, source BarSource, symbol string, capital decimal.Decimal, opts Options, metrics *monitoring.Metrics) SymbolRun {
	start := time.Now()
	run := SymbolRun{Symbol: symbol}
	fail := func(err error) SymbolRun {
		run.Err = err
		if metrics != nil {
			metrics.SimulationsTotal.WithLabelValues(symbol, "error").Inc()
		}
		return run
	}

	series, err := source.Bars(ctx, symbol)
	if err != nil {
		return fail(err)
	}
	series.Normalize()
	if err := series.Validate(opts.Signal.SlowWindow + 1); err != nil {
		return fail(err)
	}
	samples, err := signal.Generate(series, opts.Signal)
	if err != nil {
		return fail(err)
	}
	result, err := sim.Run(series, samples, capital)
	if err != nil {
		return fail(err)
	}
	run.Trades = result.Trades
	run.Equity = result.Equity

	summary, err := perf.Summary(symbol, result.Equity, result.Trades, perf.Params{
		PeriodsPerYear: series.Granularity.PeriodsPerYear(),
		RiskFreeRate:   opts.RiskFreeRate,
	})
	if err != nil {
		return fail(err)
	}
	run.Summary = &summary

	if metrics != nil {
		metrics.SimulationsTotal.WithLabelValues(symbol, "ok").Inc()
		metrics.TradesEmitted.Add(float64(len(result.Trades)))
		metrics.BarsProcessed.Add(float64(len(series.Bars)))
		metrics.SimDuration.Observe(time.Since(start).Seconds())
	}
	return run
}
