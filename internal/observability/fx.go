package observability

import (
	"github.com/smallbiznis/chargeback/internal/observability/logger"
	"github.com/smallbiznis/chargeback/internal/observability/metrics"
	"github.com/smallbiznis/chargeback/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		func(c Config) logger.Config { return c.Logger },
		func(c Config) logger.GormLoggerConfig { return c.GormLog },
		func(c Config) tracing.Config { return c.Tracing },
		func(c Config) metrics.Config { return c.Metrics },
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.RemoteWithConfig,
	),
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
