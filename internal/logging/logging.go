// Package logging provides structured logging functionality.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"options-engine/internal/models"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Out        io.Writer
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       false,
		FilePath:   filepath.Join(home, ".config", "optengine", "logs", "optengine.log"),
		MaxSize:    50,
		MaxBackups: 3,
		MaxAge:     28,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}

	if cfg.Console {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				if ll, ok := i.(string); ok {
					switch ll {
					case "debug":
						return "\033[36mDBG\033[0m"
					case "info":
						return "\033[32mINF\033[0m"
					case "warn":
						return "\033[33mWRN\033[0m"
					case "error":
						return "\033[31mERR\033[0m"
					default:
						return ll
					}
				}
				return "???"
			},
		}
		writers = append(writers, consoleWriter)
	}

	if cfg.File && cfg.FilePath != "" {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = out
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// ContextKey is the type for context keys.
type ContextKey string

const (
	// LoggerKey is the context key for the logger.
	LoggerKey ContextKey = "logger"
	// RunIDKey is the context key for an evaluation run ID.
	RunIDKey ContextKey = "run_id"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// WithSymbol adds a symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithStrategy adds a strategy id to the logger context.
func WithStrategy(logger zerolog.Logger, strategy models.StrategyID) zerolog.Logger {
	return logger.With().Str("strategy", string(strategy)).Logger()
}

// WithOperation adds an operation name to the logger context.
func WithOperation(logger zerolog.Logger, operation string) zerolog.Logger {
	return logger.With().Str("operation", operation).Logger()
}

// LogProposal logs a generated proposal on one line.
func LogProposal(logger zerolog.Logger, p *models.Proposal) {
	event := logger.Info().
		Str("event", "proposal").
		Str("strategy", string(p.Strategy)).
		Str("symbol", p.Symbol).
		Int("score", p.Score).
		Int("dte", p.DTE).
		Int("qty", p.Qty)
	if p.POP != nil {
		event = event.Float64("pop", *p.POP)
	}
	if p.RR != nil {
		event = event.Float64("rr", *p.RR)
	}
	if p.Credit != nil {
		event = event.Float64("credit", *p.Credit)
	}
	if p.Debit != nil {
		event = event.Float64("debit", *p.Debit)
	}
	if p.IVR != nil {
		event = event.Float64("ivr", *p.IVR)
	}
	event.Msg("Proposal generated")
}

// LogOrder logs an approved trade with a compact leg summary.
func LogOrder(logger zerolog.Logger, tradeID string, p *models.Proposal, qty int) {
	legs := make([]string, 0, len(p.Legs))
	for _, l := range p.Legs {
		expiry := l.Expiry
		if len(expiry) > 5 {
			expiry = expiry[5:]
		}
		legs = append(legs, string(l.Side)+" "+string(l.Type)+" "+
			strconv.FormatFloat(l.Strike, 'f', -1, 64)+"@"+expiry)
	}
	logger.Info().
		Str("event", "order").
		Str("trade_id", tradeID).
		Str("strategy", string(p.Strategy)).
		Str("symbol", p.Symbol).
		Int("qty", qty).
		Str("legs", strings.Join(legs, " | ")).
		Msg("Trade approved")
}

// RunStats summarizes one evaluation run.
type RunStats struct {
	Duration   time.Duration
	Symbols    int
	Proposals  int
	ByStrategy map[models.StrategyID]int
}

// LogRun logs a run summary.
func LogRun(logger zerolog.Logger, stats RunStats) {
	ids := make([]string, 0, len(stats.ByStrategy))
	for id := range stats.ByStrategy {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	dict := zerolog.Dict()
	for _, id := range ids {
		dict = dict.Int(id, stats.ByStrategy[models.StrategyID(id)])
	}

	logger.Info().
		Str("event", "run").
		Dur("duration", stats.Duration).
		Int("symbols", stats.Symbols).
		Int("proposals", stats.Proposals).
		Dict("by_strategy", dict).
		Msg("Strategy run completed")
}

// LogEngineStart logs engine startup.
func LogEngineStart(logger zerolog.Logger, version string, phase int, mode string) {
	logger.Info().
		Str("event", "engine_start").
		Str("version", version).
		Int("phase", phase).
		Str("mode", mode).
		Msg("Engine starting")
}

// LogCircuitTrip logs a circuit breaker trip.
func LogCircuitTrip(logger zerolog.Logger, strategy models.StrategyID, rejects int, window time.Duration) {
	logger.Error().
		Str("event", "circuit_trip").
		Str("strategy", string(strategy)).
		Int("rejects", rejects).
		Dur("window", window).
		Msg("Strategy tripped, disabled until the window clears")
}

// LogHeatCapBlock logs a heat cap block.
func LogHeatCapBlock(logger zerolog.Logger, riskPct, maxPct float64) {
	logger.Warn().
		Str("event", "heat_cap").
		Float64("risk_pct", riskPct).
		Float64("max_pct", maxPct).
		Msg("New proposals blocked")
}
