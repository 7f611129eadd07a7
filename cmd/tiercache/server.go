package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/BaSui01/tiercache/api/handlers"
	"github.com/BaSui01/tiercache/cache"
	"github.com/BaSui01/tiercache/cache/redistier"
	"github.com/BaSui01/tiercache/config"
	"github.com/BaSui01/tiercache/internal/metrics"
	"github.com/BaSui01/tiercache/internal/server"
	"github.com/BaSui01/tiercache/internal/telemetry"
)

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 组装缓存、HTTP API 与指标端口
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	cache       *cache.MultiLevelCache
	redisClient *redis.Client
	collector   *metrics.Collector
	otelReg     metric.Registration

	httpManager    *server.Manager
	metricsManager *server.Manager

	// 后台协程（限流清理、Redis 健康检查、传播错误消费）
	bgCancel context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		otel:   otelProviders,
	}
}

// Start 按顺序初始化指标、缓存与两个监听端口
func (s *Server) Start() error {
	bgCtx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.collector = metrics.NewCollector("tiercache", s.logger)

	if err := s.initCache(bgCtx); err != nil {
		return fmt.Errorf("failed to init cache: %w", err)
	}
	if err := s.startHTTPServer(bgCtx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.String("metrics_addr", s.metricsManager.Addr()),
		zap.Strings("levels", levelStrings(s.cache)),
	)
	return nil
}

// initCache 创建多级缓存。L2 由服务器持有 Redis 连接，以便运行健康检查。
func (s *Server) initCache(ctx context.Context) error {
	opts := []cache.Option{
		cache.WithLogger(s.logger),
		cache.WithRecorder(s.collector),
	}

	if s.cfg.Cache.L2.Enabled {
		client, err := redistier.Dial(ctx, s.cfg.Redis)
		if err != nil {
			return err
		}
		s.redisClient = client

		store := redistier.New(client, s.cfg.Cache.L2, redistier.WithLogger(s.logger))
		opts = append(opts, cache.WithL2Tier(store))

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			store.RunHealthCheck(ctx, s.cfg.Redis.HealthCheckInterval)
		}()
	}

	c, err := cache.New(s.cfg.Cache, opts...)
	if err != nil {
		if s.redisClient != nil {
			_ = s.redisClient.Close()
		}
		return err
	}
	s.cache = c

	reg, err := telemetry.ObserveCache(nil, c.Stats)
	if err != nil {
		s.logger.Warn("failed to register cache instruments", zap.Error(err))
	} else {
		s.otelReg = reg
	}

	// 传播失败已由缓存记录，这里只保证通道被消费
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for perr := range c.Errors() {
			s.logger.Debug("propagation error", zap.String("key", perr.Key),
				zap.String("level", string(perr.Level)), zap.Error(perr.Err))
		}
	}()
	return nil
}

// startHTTPServer 注册 API 路由与中间件后启动
func (s *Server) startHTTPServer(ctx context.Context) error {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(s.logger)
	health.RegisterCheck(handlers.NewPingCheck("cache", s.cache.Ping))
	health.RegisterRoutes(mux, Version)

	handlers.NewCacheHandler(s.cache, s.logger).RegisterRoutes(mux)

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.collector),
		RequestLogger(s.logger),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares,
			RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}

	s.httpManager = server.NewManager("api", Chain(mux, middlewares...),
		server.ConfigFor(s.cfg.Server, s.cfg.Server.HTTPPort), s.logger)
	return s.httpManager.Start()
}

// startMetricsServer 在独立端口暴露 /metrics
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager("metrics", mux,
		server.ConfigFor(s.cfg.Server, s.cfg.Server.MetricsPort), s.logger)
	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待信号或服务器异常后执行关闭
func (s *Server) WaitForShutdown() {
	managers := make([]*server.Manager, 0, 2)
	for _, m := range []*server.Manager{s.httpManager, s.metricsManager} {
		if m != nil {
			managers = append(managers, m)
		}
	}
	if err := server.Wait(context.Background(), s.logger, managers...); err != nil {
		s.logger.Error("server failure, shutting down", zap.Error(err))
	}
	s.Shutdown()
}

// Shutdown 先停止接收请求，再关闭缓存，最后关闭遥测
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	for _, m := range []*server.Manager{s.httpManager, s.metricsManager} {
		if m == nil {
			continue
		}
		if err := m.Shutdown(ctx); err != nil {
			s.logger.Error("server shutdown error", zap.String("server", m.Name()), zap.Error(err))
		}
	}

	if s.otelReg != nil {
		_ = s.otelReg.Unregister()
	}
	if s.cache != nil {
		if err := s.cache.Close(ctx); err != nil {
			s.logger.Error("cache close error", zap.Error(err))
		}
	}
	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.wg.Wait()

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Warn("redis close error", zap.Error(err))
		}
	}
	if err := s.otel.Shutdown(ctx); err != nil {
		s.logger.Warn("telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}

func levelStrings(c *cache.MultiLevelCache) []string {
	levels := c.Levels()
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = string(l)
	}
	return out
}
