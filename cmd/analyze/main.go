// Package main derives performance metrics from persisted trade logs: one
// full-period summary row per symbol plus day-by-day expanding snapshots.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"tradesim/services/config"
	"tradesim/services/marketdata"
	"tradesim/services/perf"
	"tradesim/services/tradelog"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config")
	logDir := flag.String("logs", "./trade_log", "Directory of *_trade_log.csv files")
	outDir := flag.String("out", "./strategy", "Metrics output directory")
	granFlag := flag.String("granularity", "", "Trade log cadence: daily or minute (overrides config)")
	dataDir := flag.String("data", "", "Optional directory of {SYMBOL}_daily.csv files for the return/volatility study")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	granStr := cfg.Data.Granularity
	if *granFlag != "" {
		granStr = *granFlag
	}
	granularity, err := marketdata.ParseGranularity(granStr)
	if err != nil {
		log.Fatalf("granularity: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Fatal("create output dir", zap.Error(err))
	}

	files, err := filepath.Glob(filepath.Join(*logDir, "*_trade_log.csv"))
	if err != nil {
		logger.Fatal("glob trade logs", zap.Error(err))
	}

	var summaries []perf.Snapshot
	for _, file := range files {
		symbol := strings.TrimSuffix(filepath.Base(file), "_trade_log.csv")
		if symbol == "combined" {
			continue
		}
		summary, err := analyzeSymbol(file, symbol, *outDir, granularity, cfg.Sim.RiskFreeRate)
		if err != nil {
			logger.Warn("symbol analysis failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		summaries = append(summaries, summary)
		logger.Info("analyzed", zap.String("symbol", symbol), zap.Int("trades", summary.TradeCount))

		if *dataDir != "" {
			if err := studySymbol(symbol, *dataDir, *outDir); err != nil {
				logger.Warn("daily study failed", zap.String("symbol", symbol), zap.Error(err))
			}
		}
	}

	if len(summaries) > 0 {
		path := filepath.Join(*outDir, "trade_performance_summary.csv")
		if err := writeSnapshotsCSV(path, summaries); err != nil {
			logger.Fatal("write performance summary", zap.Error(err))
		}
	}
	logger.Info("analysis complete", zap.Int("symbols", len(summaries)))
}

func analyzeSymbol(file, symbol, outDir string, g marketdata.Granularity, riskFree float64) (perf.Snapshot, error) {
	trades, err := tradelog.ReadFile(file)
	if err != nil {
		return perf.Snapshot{}, err
	}
	equity, err := perf.ReplayEquity(trades)
	if err != nil {
		return perf.Snapshot{}, fmt.Errorf("replay equity: %w", err)
	}

	summary, err := perf.Summary(symbol, equity, trades, perf.Params{
		PeriodsPerYear: g.PeriodsPerYear(),
		RiskFreeRate:   riskFree,
	})
	if err != nil {
		return perf.Snapshot{}, err
	}

	daily, err := perf.Rolling(symbol, equity, trades, riskFree)
	if err != nil {
		return perf.Snapshot{}, err
	}
	dailyPath := filepath.Join(outDir, fmt.Sprintf("%s_daily_metrics.csv", symbol))
	if err := writeSnapshotsCSV(dailyPath, daily); err != nil {
		return perf.Snapshot{}, err
	}
	return summary, nil
}

// studySymbol runs the trailing return/volatility study over the symbol's daily
// market data, when it exists alongside the trade logs.
func studySymbol(symbol, dataDir, outDir string) error {
	dataPath := filepath.Join(dataDir, fmt.Sprintf("%s_daily.csv", symbol))
	series, err := marketdata.LoadCSV(dataPath, symbol, marketdata.GranularityDaily)
	if err != nil {
		return err
	}
	points, err := perf.DailyStudy(series, perf.DefaultVolWindows)
	if err != nil {
		return err
	}

	file, err := os.Create(filepath.Join(outDir, fmt.Sprintf("%s_daily_study.csv", symbol)))
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := []string{"Date", "Return", "Cumulative Return"}
	for _, win := range perf.DefaultVolWindows {
		header = append(header, fmt.Sprintf("Volatility_%d", win))
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, p := range points {
		rec := []string{
			marketdata.DateOf(p.Timestamp).Format("2006-01-02"),
			formatFloat(p.Return),
			formatFloat(p.CumulativeReturn),
		}
		for _, win := range perf.DefaultVolWindows {
			if v, ok := p.Volatility[win]; ok {
				rec = append(rec, formatFloat(v))
			} else {
				rec = append(rec, "")
			}
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeSnapshotsCSV(path string, snapshots []perf.Snapshot) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := []string{
		"Date", "Symbol", "Total Return", "Annualized Return", "Annualized Volatility",
		"Sharpe Ratio", "Max Drawdown", "Win Rate", "Avg Win", "Avg Loss", "Profit Factor", "Trade Count",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, s := range snapshots {
		rec := []string{
			s.AsOf.Format("2006-01-02"),
			s.Symbol,
			formatFloat(s.TotalReturn),
			formatFloat(s.AnnualizedReturn),
			formatFloat(s.AnnualizedVolatility),
			formatNullable(s.SharpeRatio),
			formatFloat(s.MaxDrawdown),
			formatNullable(s.WinRate),
			formatFloat(s.AvgWin),
			formatFloat(s.AvgLoss),
			formatNullable(s.ProfitFactor),
			strconv.Itoa(s.TradeCount),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// formatNullable leaves undefined ratios empty rather than inventing a number.
func formatNullable(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
