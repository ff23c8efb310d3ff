// Package logger configures the application's logging and observability.
//
// It uses *ZeroLog* for logging and can integrate with *New Relic* to
// forward logs and trace database calls. It also adapts zerolog to pgx's
// tracelog so SQL can be logged in development.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/newrelic/go-agent/v3/integrations/logcontext-v2/zerologWriter"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
	"github.com/uwececa/dblayer/internal/config"
)

// LoggerService owns the optional New Relic application.
type LoggerService struct {
	nrApp *newrelic.Application
}

// NewLoggerService starts the New Relic agent when a license key is
// configured. Without one, or when the agent fails to start, the service is
// returned with a nil application and everything downstream skips APM.
func NewLoggerService(cfg *config.ObservabilityConfig) *LoggerService {
	service := &LoggerService{}
	if cfg == nil || !cfg.NewRelicEnabled() {
		return service
	}

	configOptions := []newrelic.ConfigOption{
		newrelic.ConfigAppName(cfg.ServiceName),
		newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
		newrelic.ConfigAppLogForwardingEnabled(cfg.NewRelic.AppLogForwardingEnabled),
		newrelic.ConfigDistributedTracerEnabled(cfg.NewRelic.DistributedTracingEnabled),
	}
	if cfg.NewRelic.DebugLogging {
		configOptions = append(configOptions, newrelic.ConfigDebugLogger(os.Stdout))
	}

	app, err := newrelic.NewApplication(configOptions...)
	if err != nil {
		fallback := zerolog.New(os.Stderr).With().Timestamp().Logger()
		fallback.Error().Err(err).Msg("failed to initialize new relic, continuing without it")
		return service
	}

	service.nrApp = app
	return service
}

// GetApplication returns the New Relic application, or nil.
func (ls *LoggerService) GetApplication() *newrelic.Application {
	if ls == nil {
		return nil
	}
	return ls.nrApp
}

// Shutdown flushes pending New Relic data.
func (ls *LoggerService) Shutdown() {
	if ls.GetApplication() != nil {
		ls.nrApp.Shutdown(10 * time.Second)
	}
}

// NewLogger builds a logger without New Relic forwarding.
func NewLogger(level string, isProd bool) zerolog.Logger {
	return NewLoggerWithService(&config.ObservabilityConfig{
		Environment: envName(isProd),
		Logging:     config.LoggingConfig{Level: level, Format: formatFor(isProd)},
	}, nil)
}

// NewLoggerWithService builds the application logger.
//
// Production writes JSON (optionally through New Relic's zerolog writer so log
// lines are forwarded with trace context); everything else writes a
// human-readable console format.
func NewLoggerWithService(cfg *config.ObservabilityConfig, ls *LoggerService) zerolog.Logger {
	return NewLoggerWithWriter(cfg, ls, os.Stdout)
}

// NewLoggerWithWriter is NewLoggerWithService with an explicit sink.
func NewLoggerWithWriter(cfg *config.ObservabilityConfig, ls *LoggerService, w io.Writer) zerolog.Logger {
	level := ParseLevel(cfg.GetLogLevel())
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = w
	if app := ls.GetApplication(); app != nil && cfg.NewRelic.AppLogForwardingEnabled {
		out = zerologWriter.New(w, app)
	} else if strings.ToLower(cfg.Logging.Format) == "console" || (!cfg.IsProduction() && cfg.Logging.Format == "") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Str("build", config.BuildID()).
		Logger()

	if !cfg.IsProduction() {
		logger = logger.With().Stack().Logger()
	}

	return logger
}

// NewPgxLogger returns the logger used by pgx tracelog. SQL and arguments get
// their own fields so they stay readable in the console output.
func NewPgxLogger(level zerolog.Level) zerolog.Logger {
	writer := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
		FieldsOrder: []string{
			"component", "sql", "args", "time", "rowCount",
		},
	}

	return zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Str("component", "database").
		Logger()
}

// GetPgxTraceLogLevel maps zerolog levels onto pgx tracelog levels.
func GetPgxTraceLogLevel(level zerolog.Level) int {
	switch level {
	case zerolog.TraceLevel:
		return int(tracelog.LogLevelTrace)
	case zerolog.DebugLevel:
		return int(tracelog.LogLevelDebug)
	case zerolog.InfoLevel:
		return int(tracelog.LogLevelInfo)
	case zerolog.WarnLevel:
		return int(tracelog.LogLevelWarn)
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return int(tracelog.LogLevelError)
	default:
		return int(tracelog.LogLevelNone)
	}
}

// ParseLevel converts a textual level into a zerolog level, defaulting to
// info.
func ParseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return parsed
}

// WithComponent returns a child logger tagged with component.
func WithComponent(logger *zerolog.Logger, component string) *zerolog.Logger {
	child := logger.With().Str("component", component).Logger()
	return &child
}

// FromContext returns the logger stored in ctx, or a disabled one.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

func envName(isProd bool) string {
	if isProd {
		return config.Production.String()
	}
	return config.Development.String()
}

func formatFor(isProd bool) string {
	if isProd {
		return "json"
	}
	return "console"
}
