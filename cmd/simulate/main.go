// Package main simulates the configured symbol universe against CSV market
// data and writes per-symbol trade logs, a combined log, and the portfolio
// equity curve.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradesim/services/arrowpipeline"
	"tradesim/services/config"
	"tradesim/services/marketdata"
	"tradesim/services/runner"
	"tradesim/services/sim"
	"tradesim/services/tradelog"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config")
	dataDir := flag.String("data", "", "Market data directory (overrides config)")
	outDir := flag.String("out", "./trade_log", "Trade log output directory")
	symbolsFlag := flag.String("symbols", "", "Comma-separated symbols (overrides config)")
	capitalFlag := flag.Float64("capital", 0, "Initial capital across the universe (overrides config)")
	workers := flag.Int("workers", 0, "Worker count (0 = NumCPU)")
	arrowOut := flag.Bool("arrow", false, "Also write equity curves as Arrow IPC streams")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *dataDir != "" {
		cfg.Data.Dir = *dataDir
	}
	symbols := cfg.Sim.Symbols
	if *symbolsFlag != "" {
		symbols = strings.Split(*symbolsFlag, ",")
		for i := range symbols {
			symbols[i] = strings.TrimSpace(symbols[i])
		}
	}
	if len(symbols) == 0 {
		log.Fatal("no symbols: set sim.symbols in config or pass -symbols")
	}
	capital := decimal.NewFromFloat(cfg.Sim.InitialCapital)
	if *capitalFlag > 0 {
		capital = decimal.NewFromFloat(*capitalFlag)
	}
	granularity, err := marketdata.ParseGranularity(cfg.Data.Granularity)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Fatal("create output dir", zap.Error(err))
	}

	source := runner.BarSourceFunc(func(_ context.Context, symbol string) (*marketdata.Series, error) {
		path := filepath.Join(cfg.Data.Dir, fmt.Sprintf("%s_%s.csv", symbol, granularity))
		return marketdata.LoadCSV(path, symbol, granularity)
	})
	batch := runner.Run(context.Background(), source, symbols, runner.Options{
		Signal:         cfg.SignalConfig(),
		InitialCapital: capital,
		RiskFreeRate:   cfg.Sim.RiskFreeRate,
		Workers:        *workers,
	}, logger, nil)

	pipeline := arrowpipeline.NewPipeline()
	var combined []sim.TradeEvent
	failed := 0
	for _, run := range batch.Runs {
		if run.Err != nil {
			failed++
			continue
		}
		logPath := filepath.Join(*outDir, fmt.Sprintf("%s_trade_log.csv", run.Symbol))
		if err := tradelog.WriteFile(logPath, run.Trades); err != nil {
			logger.Error("write trade log", zap.String("symbol", run.Symbol), zap.Error(err))
			continue
		}
		if *arrowOut {
			if err := writeArrowEquity(pipeline, *outDir, run.Symbol, run.Equity); err != nil {
				logger.Error("write arrow equity", zap.String("symbol", run.Symbol), zap.Error(err))
			}
		}
		combined = append(combined, run.Trades...)
		logger.Info("simulated",
			zap.String("symbol", run.Symbol),
			zap.Int("trades", len(run.Trades)),
			zap.Float64("total_return", run.Summary.TotalReturn),
		)
	}

	if err := tradelog.WriteFile(filepath.Join(*outDir, "combined_trade_log.csv"), combined); err != nil {
		logger.Fatal("write combined trade log", zap.Error(err))
	}
	if len(batch.Combined) > 0 {
		if err := tradelog.WriteEquityFile(filepath.Join(*outDir, "portfolio_equity.csv"), "PORTFOLIO", batch.Combined); err != nil {
			logger.Fatal("write portfolio equity", zap.Error(err))
		}
		if *arrowOut {
			if err := writeArrowEquity(pipeline, *outDir, "PORTFOLIO", batch.Combined); err != nil {
				logger.Fatal("write arrow portfolio equity", zap.Error(err))
			}
		}
	}
	logger.Info("batch complete",
		zap.String("job_id", batch.JobID),
		zap.Int("symbols", len(batch.Runs)),
		zap.Int("failed", failed),
		zap.Int("combined_trades", len(combined)),
	)
}

func writeArrowEquity(p *arrowpipeline.Pipeline, outDir, symbol string, curve []sim.EquityPoint) error {
	data, err := p.EncodeEquity(symbol, curve)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, fmt.Sprintf("%s_equity.arrow", symbol)), data, 0o644)
}
