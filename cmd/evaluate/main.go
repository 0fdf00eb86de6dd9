// Package main scores execution quality: each trade log is reconciled against
// the instrument's minute market data to produce an annotated per-trade
// metrics file and an execution summary.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	chsvc "tradesim/services/clickhouse"
	"tradesim/services/config"
	"tradesim/services/execquality"
	"tradesim/services/marketdata"
	"tradesim/services/tradelog"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config")
	logDir := flag.String("logs", "./trade_log", "Directory of *_trade_log.csv files")
	marketDir := flag.String("market", "./data", "Directory of {SYMBOL}_minute.csv market data")
	outDir := flag.String("out", "./execution", "Output directory")
	persist := flag.Bool("persist", false, "Also write execution summaries to ClickHouse")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Fatal("create output dir", zap.Error(err))
	}

	ctx := context.Background()
	var store *chsvc.Client
	if *persist {
		cfg, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal("load config", zap.Error(err))
		}
		store, err = chsvc.NewClient(ctx, cfg.ClickHouse)
		if err != nil {
			logger.Fatal("connect clickhouse", zap.Error(err))
		}
		defer store.Close()
	}

	files, err := filepath.Glob(filepath.Join(*logDir, "*_trade_log.csv"))
	if err != nil {
		logger.Fatal("glob trade logs", zap.Error(err))
	}

	processed := 0
	for _, file := range files {
		symbol := strings.TrimSuffix(filepath.Base(file), "_trade_log.csv")
		if symbol == "combined" {
			continue
		}
		summary, err := evaluateSymbol(file, symbol, *marketDir, *outDir)
		if err != nil {
			logger.Warn("evaluation failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if store != nil {
			if err := store.InsertExecutionSummary(ctx, summary); err != nil {
				logger.Warn("persist execution summary", zap.String("symbol", symbol), zap.Error(err))
			}
		}
		processed++
		logger.Info("evaluated", zap.String("symbol", symbol))
	}
	logger.Info("evaluation complete", zap.Int("symbols", processed))
}

func evaluateSymbol(logFile, symbol, marketDir, outDir string) (execquality.Summary, error) {
	trades, err := tradelog.ReadFile(logFile)
	if err != nil {
		return execquality.Summary{}, err
	}
	marketPath := filepath.Join(marketDir, fmt.Sprintf("%s_minute.csv", symbol))
	market, err := marketdata.LoadCSV(marketPath, symbol, marketdata.GranularityMinute)
	if err != nil {
		return execquality.Summary{}, fmt.Errorf("market data: %w", err)
	}

	annotated, summary, err := execquality.Analyze(symbol, trades, market)
	if err != nil {
		return execquality.Summary{}, err
	}

	metricsPath := filepath.Join(outDir, fmt.Sprintf("%s_trade_metrics.csv", symbol))
	if err := writeAnnotatedCSV(metricsPath, annotated); err != nil {
		return execquality.Summary{}, err
	}
	summaryPath := filepath.Join(outDir, fmt.Sprintf("%s_execution_summary.csv", symbol))
	return summary, writeSummaryCSV(summaryPath, summary)
}

func writeAnnotatedCSV(path string, annotated []execquality.AnnotatedTrade) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := []string{
		"Symbol", "Datetime", "Action", "Price", "Shares", "Cash_Remaining",
		"Market_VWAP", "Slippage", "Participation_Rate",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, a := range annotated {
		rec := []string{
			a.Symbol,
			time.UnixMilli(a.Timestamp).UTC().Format("2006-01-02 15:04:05"),
			string(a.Action),
			a.Price.String(),
			strconv.FormatInt(a.Shares, 10),
			a.CashRemaining.String(),
			formatNullable(a.MarketVWAP),
			formatNullable(a.Slippage),
			formatNullable(a.Participation),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeSummaryCSV(path string, s execquality.Summary) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := []string{
		"Symbol", "Total Trades", "Total Shares Traded", "Total Market Volume",
		"Average Participation Rate", "Total Slippage ($)", "Average Slippage per Share ($)",
		"VWAP of Market", "TWAP of Trades",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	rec := []string{
		s.Symbol,
		strconv.Itoa(s.TotalTrades),
		strconv.FormatInt(s.TotalSharesTraded, 10),
		formatFloat(s.TotalMarketVolume),
		formatNullable(s.AverageParticipationRate),
		formatFloat(s.TotalSlippage),
		formatNullable(s.AverageSlippagePerShare),
		formatFloat(s.MarketVWAP),
		formatNullable(s.TradesTWAP),
	}
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func formatNullable(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
