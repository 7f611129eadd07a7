package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/BaSui01/tiercache/config"
	"github.com/BaSui01/tiercache/types"
)

// instrumentationName 缓存仪表所属的 Meter 名称
const instrumentationName = "github.com/BaSui01/tiercache"

// Providers 持有 SDK 的 TracerProvider 与 MeterProvider。
// 禁用遥测时两者均为 nil，Shutdown 为空操作。
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init 初始化 OTel SDK 并注册为全局 Provider
func Init(cfg config.TelemetryConfig, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}
	if cfg.OTLPEndpoint == "" {
		return nil, errors.New("telemetry enabled but otlp_endpoint is empty")
	}

	ctx := context.Background()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "tiercache"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(buildVersion()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	rate := clampSampleRate(cfg.SampleRate)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", serviceName),
		zap.Float64("sample_rate", rate),
	)

	return &Providers{tp: tp, mp: mp}, nil
}

// Shutdown 刷新未导出的数据并关闭导出器。nil 或 noop Providers 上调用是安全的。
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// StatsFunc 返回当前缓存统计快照
type StatsFunc func() types.CacheStats

// ObserveCache 在 meter 上注册异步仪表，每次采集时读取 stats。
// meter 为 nil 时使用全局 MeterProvider。返回的 Registration 用于注销回调。
func ObserveCache(meter metric.Meter, stats StatsFunc) (metric.Registration, error) {
	if stats == nil {
		return nil, errors.New("stats func is nil")
	}
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	hits, err := meter.Int64ObservableCounter("tiercache.hits",
		metric.WithDescription("Cache hits per level"))
	if err != nil {
		return nil, fmt.Errorf("create hits counter: %w", err)
	}
	misses, err := meter.Int64ObservableCounter("tiercache.misses",
		metric.WithDescription("Cache misses per level"))
	if err != nil {
		return nil, fmt.Errorf("create misses counter: %w", err)
	}
	entries, err := meter.Int64ObservableGauge("tiercache.entries",
		metric.WithDescription("Entries per level"))
	if err != nil {
		return nil, fmt.Errorf("create entries gauge: %w", err)
	}
	hitRate, err := meter.Float64ObservableGauge("tiercache.hit_rate",
		metric.WithDescription("Overall hit rate"))
	if err != nil {
		return nil, fmt.Errorf("create hit rate gauge: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		st := stats()
		for level, ls := range map[types.Level]types.LevelStats{
			types.LevelL1: st.L1,
			types.LevelL2: st.L2,
			types.LevelL3: st.L3,
		} {
			attrs := metric.WithAttributes(attribute.String("level", string(level)))
			o.ObserveInt64(hits, int64(ls.Hits), attrs)
			o.ObserveInt64(misses, int64(ls.Misses), attrs)
			o.ObserveInt64(entries, ls.Size, attrs)
		}
		o.ObserveFloat64(hitRate, st.Overall.HitRate)
		return nil
	}, hits, misses, entries, hitRate)
}

func clampSampleRate(r float64) float64 {
	switch {
	case r <= 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}

// buildVersion 从构建信息读取模块版本，取不到时返回 "dev"
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
