// Package main runs the trade simulation service: a gRPC API with a REST
// facade for batch simulation over ClickHouse-resident market data.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	pb "tradesim/proto"
	chsvc "tradesim/services/clickhouse"
	"tradesim/services/config"
	"tradesim/services/marketdata"
	"tradesim/services/monitoring"
	"tradesim/services/perf"
	"tradesim/services/runner"
	sig "tradesim/services/signal"
	"tradesim/services/sim"
)

// SimService implements the simulation service over ClickHouse bar data.
type SimService struct {
	pb.UnimplementedTradeSimServiceServer
	store   *chsvc.Client
	metrics *monitoring.Metrics
	logger  *zap.Logger
	config  *config.Config
}

func NewSimService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*SimService, error) {
	store, err := chsvc.NewClient(ctx, cfg.ClickHouse)
	if err != nil {
		return nil, fmt.Errorf("create clickhouse client: %w", err)
	}
	return &SimService{
		store:   store,
		metrics: monitoring.New(),
		logger:  logger,
		config:  cfg,
	}, nil
}

// Simulate runs the requested universe and returns trades, equity curves, and
// per-symbol summaries. A failed symbol is reported in its result slot and
// never aborts the batch.
func (s *SimService) Simulate(ctx context.Context, req *pb.SimulateRequest) (*pb.SimulateResponse, error) {
	start := time.Now()
	if len(req.Symbols) == 0 {
		return nil, fmt.Errorf("no symbols requested")
	}
	granularity, err := marketdata.ParseGranularity(req.Granularity)
	if err != nil {
		return nil, err
	}

	opts := runner.Options{
		Signal:         s.config.SignalConfig(),
		InitialCapital: decimal.NewFromFloat(s.config.Sim.InitialCapital),
		RiskFreeRate:   s.config.Sim.RiskFreeRate,
	}
	if req.FastWindow > 0 && req.SlowWindow > 0 {
		opts.Signal = sig.Config{FastWindow: req.FastWindow, SlowWindow: req.SlowWindow}
	}
	if req.InitialCapital > 0 {
		opts.InitialCapital = decimal.NewFromFloat(req.InitialCapital)
	}
	if req.RiskFreeRate != 0 {
		opts.RiskFreeRate = req.RiskFreeRate
	}

	source := runner.BarSourceFunc(func(ctx context.Context, symbol string) (*marketdata.Series, error) {
		return s.store.QueryBars(ctx, symbol, req.StartTime, req.EndTime, granularity)
	})
	batch := runner.Run(ctx, source, req.Symbols, opts, s.logger, s.metrics)

	resp := &pb.SimulateResponse{
		JobId:           batch.JobID,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		CombinedEquity:  equityToProto(batch.Combined),
	}
	var snapshots []perf.Snapshot
	for _, run := range batch.Runs {
		result := &pb.SymbolResult{Symbol: run.Symbol}
		if run.Err != nil {
			result.Error = run.Err.Error()
			resp.Results = append(resp.Results, result)
			continue
		}
		result.Trades = tradesToProto(run.Trades)
		result.EquityCurve = equityToProto(run.Equity)
		result.Summary = snapshotToProto(run)
		resp.Results = append(resp.Results, result)
		if run.Summary != nil {
			snapshots = append(snapshots, *run.Summary)
		}
	}

	// Persistence is best-effort; the caller already has the full response.
	if err := s.store.InsertSnapshots(ctx, snapshots); err != nil {
		s.logger.Warn("persist snapshots failed", zap.String("job_id", batch.JobID), zap.Error(err))
	}
	return resp, nil
}

func tradesToProto(trades []sim.TradeEvent) []*pb.TradeEvent {
	out := make([]*pb.TradeEvent, len(trades))
	for i, t := range trades {
		out[i] = &pb.TradeEvent{
			Symbol:        t.Symbol,
			Timestamp:     t.Timestamp,
			Action:        string(t.Action),
			Price:         t.Price.String(),
			Shares:        t.Shares,
			CashRemaining: t.CashRemaining.String(),
		}
	}
	return out
}

func equityToProto(curve []sim.EquityPoint) []*pb.EquityPoint {
	out := make([]*pb.EquityPoint, len(curve))
	for i, p := range curve {
		out[i] = &pb.EquityPoint{
			Timestamp: p.Timestamp,
			Equity:    p.Equity.String(),
			Pnl:       p.PnL.String(),
			Return:    p.Return,
		}
	}
	return out
}

func snapshotToProto(run runner.SymbolRun) *pb.PerformanceSnapshot {
	s := run.Summary
	if s == nil {
		return nil
	}
	return &pb.PerformanceSnapshot{
		AsOf:                 s.AsOf.Format("2006-01-02"),
		Symbol:               s.Symbol,
		TotalReturn:          s.TotalReturn,
		AnnualizedReturn:     s.AnnualizedReturn,
		AnnualizedVolatility: s.AnnualizedVolatility,
		SharpeRatio:          s.SharpeRatio,
		MaxDrawdown:          s.MaxDrawdown,
		WinRate:              s.WinRate,
		AvgWin:               s.AvgWin,
		AvgLoss:              s.AvgLoss,
		ProfitFactor:         s.ProfitFactor,
		TradeCount:           s.TradeCount,
	}
}

func (s *SimService) setupHTTPRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/simulate", s.handleSimulate)
		api.GET("/health", s.handleHealth)
	}
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

func (s *SimService) handleSimulate(c *gin.Context) {
	var req pb.SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := s.Simulate(c.Request.Context(), &req)
	if err != nil {
		s.logger.Error("simulate request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *SimService) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().Unix()})
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting tradesim service",
		zap.String("env", cfg.App.Env),
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("grpc_port", cfg.Server.GRPCPort),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service, err := NewSimService(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to create service", zap.Error(err))
	}
	defer service.store.Close()

	grpcServer := grpc.NewServer()
	pb.RegisterTradeSimServiceServer(grpcServer, service)
	reflection.Register(grpcServer)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	service.setupHTTPRoutes(router)

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			logger.Fatal("failed to listen on gRPC port", zap.Error(err))
		}
		logger.Info("gRPC server listening", zap.Int("port", cfg.Server.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("gRPC serve failed", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("HTTP server listening", zap.Int("port", cfg.Server.HTTPPort))
		if err := router.Run(fmt.Sprintf(":%d", cfg.Server.HTTPPort)); err != nil {
			logger.Fatal("HTTP serve failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	grpcServer.GracefulStop()
	logger.Info("stopped")
}
