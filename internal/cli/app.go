package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"options-engine/internal/config"
	"options-engine/internal/engine"
	apperrors "options-engine/internal/errors"
	"options-engine/internal/guardrails"
	"options-engine/internal/metrics"
	"options-engine/internal/notify"
	"options-engine/internal/publish"
	"options-engine/internal/sentinels"
	"options-engine/internal/store"
)

// App holds the application dependencies. Infrastructure is opened lazily so
// commands that do not need the store or Redis run without them.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Registry

	store     *store.SQLStore
	redis     *redis.Client
	cooldowns guardrails.CooldownStore
	breaker   *sentinels.CircuitBreaker
}

// NewApp creates an App.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger, Metrics: metrics.New(nil)}
}

// Store opens the relational store on first use.
func (a *App) Store() (*store.SQLStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	st, err := store.Open(a.Config.Store.Driver, a.Config.Store.DSN)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("driver", a.Config.Store.Driver).Msg("store opened")
	a.store = st
	return st, nil
}

// Cooldowns returns the Redis cooldown store when an address is configured
// and the in-memory store otherwise.
func (a *App) Cooldowns(ctx context.Context) (guardrails.CooldownStore, error) {
	if a.cooldowns != nil {
		return a.cooldowns, nil
	}
	if a.Config.Redis.Addr == "" {
		a.cooldowns = guardrails.NewMemoryCooldownStore(time.Now)
		return a.cooldowns, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, apperrors.NewStoreError("redis ping", err)
	}
	a.redis = client
	a.cooldowns = guardrails.NewRedisCooldownStore(client)
	return a.cooldowns, nil
}

// Breaker returns the process-wide strategy circuit breaker. It only records
// rejects in live mode.
func (a *App) Breaker() *sentinels.CircuitBreaker {
	if a.breaker == nil {
		a.breaker = sentinels.NewCircuitBreaker(a.Config.CircuitBreakerEnabled(),
			sentinels.WithLimits(a.Config.CircuitBreaker.MaxRejects, a.Config.CircuitBreaker.Window),
			sentinels.WithBreakerLogger(a.Logger),
			sentinels.WithBreakerMetrics(a.Metrics),
		)
	}
	return a.breaker
}

// HeatCap builds the heat cap over st.
func (a *App) HeatCap(st sentinels.TradeRiskStore) *sentinels.HeatCap {
	return sentinels.NewHeatCap(st, sentinels.HeatCapConfig{
		Enabled:  a.Config.HeatCap.Enabled,
		MaxPct:   a.Config.HeatCap.MaxPct,
		Lookback: a.Config.HeatCap.Lookback,
		Logger:   &a.Logger,
		Metrics:  a.Metrics,
	})
}

// Evaluator builds the guardrail evaluator. Configured limits are the
// fallback for values missing from the guardrails table.
func (a *App) Evaluator(st guardrails.PositionStore, cooldowns guardrails.CooldownStore) *guardrails.Evaluator {
	g := a.Config.Guardrails
	return guardrails.NewEvaluator(st, cooldowns, a.Config.Trading.Equity,
		guardrails.WithLimits(guardrails.Limits{
			MaxPositions:       g.MaxPositions,
			MaxEquityAtRiskPct: g.MaxEquityAtRiskPct,
			RiskPerTradePct:    g.RiskPerTradePct,
		}),
		guardrails.WithCooldown(g.Cooldown),
		guardrails.WithLogger(a.Logger),
		guardrails.WithMetrics(a.Metrics),
	)
}

// Publisher returns the Kafka publisher when enabled and a log publisher
// otherwise.
func (a *App) Publisher() (publish.Publisher, error) {
	k := a.Config.Kafka
	if !k.Enabled {
		return publish.NewLogPublisher(a.Logger), nil
	}
	p, err := publish.NewKafkaPublisher(k.Brokers, k.Topic,
		publish.WithLogger(a.Logger),
		publish.WithMetrics(a.Metrics),
		publish.WithVersion(a.Config.App.Version),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: %w", err)
	}
	return p, nil
}

// Notifier builds the notification fan-out from config.
func (a *App) Notifier() notify.Notifier {
	n := a.Config.Notifications
	mn := notify.NewMultiNotifier(&n)
	if n.Terminal.Enabled {
		mn.AddChannel(notify.NewTerminalNotifier(os.Stderr, n.Terminal.Bell))
	}
	return mn
}

// NewRunner builds a runner over source, wrapped with the rate limit,
// timeout and breaker configured for the engine.
func (a *App) NewRunner(source engine.InputSource, heat *sentinels.HeatCap) *engine.Runner {
	opts := engine.DefaultSourceOptions()
	if a.Config.Engine.SourceTimeout > 0 {
		opts.Timeout = a.Config.Engine.SourceTimeout
	}
	opts.Rate = a.Config.Engine.FetchRate
	opts.Burst = a.Config.Engine.FetchBurst
	opts.Logger = a.Logger
	opts.Metrics = a.Metrics

	runnerOpts := []engine.RunnerOption{
		engine.WithBreaker(a.Breaker()),
		engine.WithRunnerLogger(a.Logger),
		engine.WithRunnerMetrics(a.Metrics),
	}
	if heat != nil {
		runnerOpts = append(runnerOpts, engine.WithHeatCap(heat))
	}
	return engine.NewRunner(a.Config, engine.NewRegistry(a.Config),
		engine.NewResilientSource(source, opts), runnerOpts...)
}

// Close releases opened infrastructure.
func (a *App) Close() error {
	var firstErr error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			firstErr = err
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
