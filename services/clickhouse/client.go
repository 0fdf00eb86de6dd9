// Package clickhouse is the storage edge: it loads bar series for simulation
// and persists performance snapshots and execution summaries.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"tradesim/services/config"
	"tradesim/services/execquality"
	"tradesim/services/marketdata"
	"tradesim/services/perf"
)

// Client wraps one native-protocol connection pool.
type Client struct {
	conn     driver.Conn
	database string
}

// NewClient opens a connection pool and verifies it with a ping.
func NewClient(ctx context.Context, cfg config.ClickHouse) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		DialTimeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Client{conn: conn, database: cfg.Database}, nil
}

// QueryBars loads one instrument's bars for [from, to) epoch ms, ordered by
// timestamp. The caller still normalizes: the view dedupes by version but
// ordering inside a batch is all this query guarantees.
func (c *Client) QueryBars(ctx context.Context, symbol string, from, to int64, g marketdata.Granularity) (*marketdata.Series, error) {
	query := fmt.Sprintf(`
		SELECT ts, open, high, low, close, volume
		FROM %s.bars
		WHERE symbol = ? AND granularity = ? AND ts >= ? AND ts < ?
		ORDER BY ts`, c.database)

	rows, err := c.conn.Query(ctx, query, symbol, g.String(), from, to)
	if err != nil {
		return nil, fmt.Errorf("query bars %s: %w", symbol, err)
	}
	defer rows.Close()

	series := &marketdata.Series{Symbol: symbol, Granularity: g}
	for rows.Next() {
		var (
			ts                             int64
			open, high, low, closePx, vol decimal.Decimal
		)
		if err := rows.Scan(&ts, &open, &high, &low, &closePx, &vol); err != nil {
			return nil, fmt.Errorf("scan bar %s: %w", symbol, err)
		}
		series.Bars = append(series.Bars, marketdata.Bar{
			Timestamp: ts, Open: open, High: high, Low: low, Close: closePx, Volume: vol,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows %s: %w", symbol, err)
	}
	series.Normalize()
	return series, nil
}

// InsertSnapshots batch-inserts performance snapshots. Nullable ratios map to
// Nullable(Float64) columns; nil stays NULL end to end.
func (c *Client) InsertSnapshots(ctx context.Context, snapshots []perf.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf(`
		INSERT INTO %s.perf_snapshots
		(as_of, symbol, total_return, annualized_return, annualized_volatility,
		 sharpe_ratio, max_drawdown, win_rate, avg_win, avg_loss, profit_factor, trade_count)`, c.database))
	if err != nil {
		return fmt.Errorf("prepare snapshot batch: %w", err)
	}
	for _, s := range snapshots {
		if err := batch.Append(
			s.AsOf,
			s.Symbol,
			s.TotalReturn,
			s.AnnualizedReturn,
			s.AnnualizedVolatility,
			s.SharpeRatio,
			s.MaxDrawdown,
			s.WinRate,
			s.AvgWin,
			s.AvgLoss,
			s.ProfitFactor,
			uint32(s.TradeCount),
		); err != nil {
			return fmt.Errorf("append snapshot %s: %w", s.Symbol, err)
		}
	}
	return batch.Send()
}

// InsertExecutionSummary persists one instrument's execution-quality rollup.
func (c *Client) InsertExecutionSummary(ctx context.Context, s execquality.Summary) error {
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf(`
		INSERT INTO %s.execution_summaries
		(symbol, total_trades, total_shares_traded, total_market_volume,
		 average_participation_rate, total_slippage, average_slippage_per_share,
		 market_vwap, trades_twap)`, c.database))
	if err != nil {
		return fmt.Errorf("prepare execution batch: %w", err)
	}
	if err := batch.Append(
		s.Symbol,
		uint32(s.TotalTrades),
		uint64(s.TotalSharesTraded),
		s.TotalMarketVolume,
		s.AverageParticipationRate,
		s.TotalSlippage,
		s.AverageSlippagePerShare,
		s.MarketVWAP,
		s.TradesTWAP,
	); err != nil {
		return fmt.Errorf("append execution summary %s: %w", s.Symbol, err)
	}
	return batch.Send()
}

// Close releases the connection pool.
func (c *Client) Close() error { return c.conn.Close() }
