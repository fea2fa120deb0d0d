package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	apperrors "options-engine/internal/errors"
	"options-engine/internal/metrics"
	"options-engine/internal/models"
	"options-engine/pkg/utils"
)

// InputSource builds the strategy input for one symbol. It returns
// ErrNoData, or a nil input, when the symbol has nothing to evaluate.
type InputSource interface {
	Input(ctx context.Context, symbol string) (*models.StrategyInput, error)
}

// SourceFunc adapts a function to InputSource.
type SourceFunc func(ctx context.Context, symbol string) (*models.StrategyInput, error)

// Input calls f.
func (f SourceFunc) Input(ctx context.Context, symbol string) (*models.StrategyInput, error) {
	return f(ctx, symbol)
}

// SourceOptions configures a ResilientSource.
type SourceOptions struct {
	Timeout time.Duration
	Rate    float64 // fetches per second, 0 for unlimited
	Burst   int
	Retry   utils.RetryConfig
	Logger  zerolog.Logger
	Metrics *metrics.Registry
}

// DefaultSourceOptions returns a 10s timeout, 5 fetches per second and two
// retries.
func DefaultSourceOptions() SourceOptions {
	return SourceOptions{
		Timeout: 10 * time.Second,
		Rate:    5,
		Burst:   5,
		Retry: utils.RetryConfig{
			MaxAttempts:   2,
			InitialDelay:  200 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			BackoffFactor: 2,
		},
		Logger: zerolog.Nop(),
	}
}

// ResilientSource wraps an InputSource with a rate limit, a per-call
// timeout, retries and a circuit breaker. A symbol with no data is not a
// failure.
type ResilientSource struct {
	next    InputSource
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
	retry   utils.RetryConfig
	logger  zerolog.Logger
	metrics *metrics.Registry
}

// NewResilientSource wraps next.
func NewResilientSource(next InputSource, opts SourceOptions) *ResilientSource {
	s := &ResilientSource{
		next:    next,
		timeout: opts.Timeout,
		retry:   opts.Retry,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}

	st := gobreaker.Settings{Name: "input-source"}
	st.Interval = 60 * time.Second
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 5 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.5
	}
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, apperrors.ErrNoData)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		s.logger.Warn().
			Str("breaker", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("source breaker state change")
	}
	s.breaker = gobreaker.NewCircuitBreaker(st)

	return s
}

// State returns the breaker state.
func (s *ResilientSource) State() gobreaker.State {
	return s.breaker.State()
}

// Input fetches the input for symbol.
func (s *ResilientSource) Input(ctx context.Context, symbol string) (*models.StrategyInput, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, apperrors.NewSourceError(symbol, "rate limit wait", err)
		}
	}

	retry := s.retry
	retry.Retryable = retryable

	return utils.RetryWithResult(ctx, retry, func() (*models.StrategyInput, error) {
		out, err := s.breaker.Execute(func() (interface{}, error) {
			return s.fetch(ctx, symbol)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, apperrors.NewSourceError(symbol, "source breaker open", apperrors.ErrCircuitOpen)
			}
			return nil, err
		}
		in, _ := out.(*models.StrategyInput)
		return in, nil
	})
}

type fetchResult struct {
	in  *models.StrategyInput
	err error
}

// fetch calls the wrapped source under the timeout. A source that ignores
// its context is abandoned when the timeout fires.
func (s *ResilientSource) fetch(ctx context.Context, symbol string) (*models.StrategyInput, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan fetchResult, 1)
	go func() {
		in, err := s.next.Input(ctx, symbol)
		done <- fetchResult{in: in, err: err}
	}()

	select {
	case r := <-done:
		s.metrics.ObserveSource(time.Since(start))
		if r.err == nil && r.in == nil {
			return nil, apperrors.ErrNoData
		}
		return r.in, r.err
	case <-ctx.Done():
		s.metrics.ObserveSource(time.Since(start))
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.NewSourceError(symbol, "timed out", apperrors.ErrSourceTimeout)
		}
		return nil, ctx.Err()
	}
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, apperrors.ErrNoData),
		errors.Is(err, apperrors.ErrCircuitOpen),
		errors.Is(err, apperrors.ErrSourceTimeout),
		errors.Is(err, apperrors.ErrInvalidSnapshot),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
