package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/chargeback/internal/config"
	"github.com/smallbiznis/chargeback/internal/observability/logger"
	"github.com/smallbiznis/chargeback/internal/observability/metrics"
	"github.com/smallbiznis/chargeback/internal/observability/tracing"
)

// Config groups the logging, tracing and metrics settings. The OTEL_* and LOG_* variables
// override what the application config says.
type Config struct {
	Logger  logger.Config
	GormLog logger.GormLoggerConfig
	Tracing tracing.Config
	Metrics metrics.Config
}

func LoadConfig(cfg config.Config) Config {
	service := strings.TrimSpace(cfg.AppName)
	if service == "" {
		service = "chargeback"
	}
	env := lookup("DEPLOYMENT_ENV", cfg.Environment)
	version := lookup("SERVICE_VERSION", cfg.AppVersion)
	level := strings.ToLower(lookup("LOG_LEVEL", "info"))
	debug := level == "debug" || isDevEnv(env)

	endpoint := lookup("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	protocol := strings.ToLower(lookup("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", lookup("OTEL_EXPORTER_OTLP_PROTOCOL", cfg.OTLPProtocol)))
	otelEnabled := lookupBool("OTEL_ENABLED", cfg.IsProduction())

	gormLog := logger.DefaultGormLoggerConfig()
	gormLog.LogParams = debug

	return Config{
		Logger: logger.Config{
			ServiceName: service,
			Environment: env,
			Version:     version,
			Level:       level,
			Format:      strings.ToLower(lookup("LOG_FORMAT", "json")),
			Debug:       debug,
		},
		GormLog: gormLog,
		Tracing: tracing.Config{
			Enabled:          otelEnabled,
			ServiceName:      service,
			ServiceVersion:   version,
			Environment:      env,
			ExporterEndpoint: endpoint,
			ExporterProtocol: protocol,
			SamplingRatio:    lookupFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		Metrics: metrics.Config{
			Enabled:          otelEnabled,
			ExporterEndpoint: endpoint,
			ExporterProtocol: protocol,
			ServiceName:      service,
			Environment:      env,
		},
	}
}

// Debug reports whether verbose request logging and SQL parameters are enabled.
func (c Config) Debug() bool {
	return c.Logger.Debug
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func lookup(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(def)
}

func lookupBool(key string, def bool) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return parsed
}

func lookupFloat(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil || parsed < 0 || parsed > 1 {
		return def
	}
	return parsed
}
