package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/tiercache/config"
)

// ErrClosed 管理器已关闭
var ErrClosed = errors.New("server is closed")

// Manager HTTP 服务器管理器
type Manager struct {
	name     string
	server   *http.Server
	listener net.Listener
	errCh    chan error
	config   Config
	logger   *zap.Logger
	mu       sync.RWMutex
	closed   bool
}

// Config 服务器配置
type Config struct {
	// 监听地址，":0" 表示随机端口
	Addr string `yaml:"addr" json:"addr"`

	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	MaxHeaderBytes int `yaml:"max_header_bytes" json:"max_header_bytes"`

	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 返回默认服务器配置
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 30 * time.Second,
	}
}

// ConfigFor 由服务配置生成指定端口的监听配置
func ConfigFor(cfg config.ServerConfig, port int) Config {
	c := DefaultConfig()
	c.Addr = fmt.Sprintf(":%d", port)
	if cfg.ReadTimeout > 0 {
		c.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		c.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.ShutdownTimeout > 0 {
		c.ShutdownTimeout = cfg.ShutdownTimeout
	}
	return c
}

// NewManager 创建服务器管理器，name 用于日志区分（如 "api"、"metrics"）
func NewManager(name string, handler http.Handler, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		name: name,
		server: &http.Server{
			Addr:           cfg.Addr,
			Handler:        handler,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			IdleTimeout:    cfg.IdleTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
		errCh:  make(chan error, 1),
		config: cfg,
		logger: logger.With(zap.String("component", "http_server"), zap.String("server", name)),
	}
}

// Start 开始监听并在后台提供服务
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.listener != nil {
		return fmt.Errorf("server %s already started", m.name)
	}

	listener, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	m.listener = listener
	m.logger.Info("starting HTTP server", zap.String("addr", listener.Addr().String()))

	go m.serve(listener)
	return nil
}

func (m *Manager) serve(listener net.Listener) {
	err := m.server.Serve(listener)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	m.logger.Error("HTTP server failed", zap.Error(err))
	select {
	case m.errCh <- err:
	default:
	}
}

// Shutdown 在 ShutdownTimeout 内排空连接后关闭。重复调用返回 nil。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()

	if err := m.server.Shutdown(shutdownCtx); err != nil {
		m.logger.Error("HTTP server shutdown failed", zap.Error(err))
		return err
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// Errors 返回后台服务的异常退出错误
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// Addr 返回实际监听地址；未启动时返回配置地址
func (m *Manager) Addr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.config.Addr
}

// Name 返回服务器名称
func (m *Manager) Name() string {
	return m.name
}

// IsRunning 已启动且未关闭
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listener != nil && !m.closed
}

// Wait 阻塞直到收到退出信号、任一服务器异常退出或 ctx 结束。
// 返回触发原因：信号与 ctx 结束返回 nil，服务器异常返回该错误。
func Wait(ctx context.Context, logger *zap.Logger, managers ...*Manager) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	failed := make(chan error, len(managers))
	done := make(chan struct{})
	defer close(done)
	for _, m := range managers {
		go func(m *Manager) {
			select {
			case err := <-m.errCh:
				failed <- fmt.Errorf("%s server: %w", m.name, err)
			case <-done:
			}
		}(m)
	}

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		return nil
	case err := <-failed:
		logger.Error("server exited unexpectedly", zap.Error(err))
		return err
	case <-ctx.Done():
		return nil
	}
}
