// Package proto defines the wire types for the simulation service. Decimal
// quantities travel as strings so no precision is lost crossing the boundary.
package proto

import "context"

type SimulateRequest struct {
	Symbols        []string `json:"symbols"`
	Granularity    string   `json:"granularity"`
	StartTime      int64    `json:"start_time"`
	EndTime        int64    `json:"end_time"`
	InitialCapital float64  `json:"initial_capital"`
	FastWindow     int      `json:"fast_window"`
	SlowWindow     int      `json:"slow_window"`
	RiskFreeRate   float64  `json:"risk_free_rate"`
}

type TradeEvent struct {
	Symbol        string `json:"symbol"`
	Timestamp     int64  `json:"timestamp"`
	Action        string `json:"action"`
	Price         string `json:"price"`
	Shares        int64  `json:"shares"`
	CashRemaining string `json:"cash_remaining"`
}

type EquityPoint struct {
	Timestamp int64   `json:"timestamp"`
	Equity    string  `json:"equity"`
	Pnl       string  `json:"pnl"`
	Return    float64 `json:"return"`
}

// PerformanceSnapshot mirrors perf.Snapshot; pointer fields serialize as JSON
// null when the underlying ratio is undefined.
type PerformanceSnapshot struct {
	AsOf                 string   `json:"as_of"`
	Symbol               string   `json:"symbol"`
	TotalReturn          float64  `json:"total_return"`
	AnnualizedReturn     float64  `json:"annualized_return"`
	AnnualizedVolatility float64  `json:"annualized_volatility"`
	SharpeRatio          *float64 `json:"sharpe_ratio"`
	MaxDrawdown          float64  `json:"max_drawdown"`
	WinRate              *float64 `json:"win_rate"`
	AvgWin               float64  `json:"avg_win"`
	AvgLoss              float64  `json:"avg_loss"`
	ProfitFactor         *float64 `json:"profit_factor"`
	TradeCount           int      `json:"trade_count"`
}

type SymbolResult struct {
	Symbol      string               `json:"symbol"`
	Error       string               `json:"error,omitempty"`
	Trades      []*TradeEvent        `json:"trades"`
	EquityCurve []*EquityPoint       `json:"equity_curve"`
	Summary     *PerformanceSnapshot `json:"summary,omitempty"`
}

type SimulateResponse struct {
	JobId           string          `json:"job_id"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	Results         []*SymbolResult `json:"results"`
	CombinedEquity  []*EquityPoint  `json:"combined_equity"`
}

// gRPC server interface stub

type UnimplementedTradeSimServiceServer struct{}

func RegisterTradeSimServiceServer(_ any, _ TradeSimServiceServer) {}

type TradeSimServiceServer interface {
	Simulate(context.Context, *SimulateRequest) (*SimulateResponse, error)
}
