package retry

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"

	"ocr-batch-sync/internal/domain"
	"ocr-batch-sync/internal/infra/metrics"
)

// DefaultPolicy mirrors the service defaults: connectivity failures,
// timeouts and the explicit retryable marker retry; invalid input and the
// explicit non-retryable marker never do.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      DefaultMaxRetries,
		BaseDelay:       time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
		Retryable: []error{
			domain.ErrRetryable,
			context.DeadlineExceeded,
		},
		NonRetryable: []error{
			domain.ErrNonRetryable,
			domain.ErrInvalidArgument,
			domain.ErrInvalidJobID,
		},
	}
}

// Classify decides whether an error is worth another attempt.
// Precedence: registered non-retryable, registered retryable, status code
// (5xx and 429 retry, other 4xx do not), then a safe non-retryable default.
func Classify(p Policy, err error) bool {
	for _, target := range p.NonRetryable {
		if errors.Is(err, target) {
			return false
		}
	}
	for _, target := range p.Retryable {
		if errors.Is(err, target) {
			return true
		}
	}

	var remote *domain.RemoteError
	if errors.As(err, &remote) && remote.StatusCode > 0 {
		if remote.StatusCode >= 500 || remote.StatusCode == 429 {
			return true
		}
		if remote.StatusCode >= 400 {
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}

// retryAfterHint extracts the server's retry directive when the transport
// populated one on the failure.
func retryAfterHint(err error) time.Duration {
	var remote *domain.RemoteError
	if errors.As(err, &remote) {
		return remote.RetryAfter
	}
	return 0
}

// Do runs fn until it succeeds, fails permanently, or attempts run out.
// Transient failures are absorbed entirely; whatever finally stops the loop
// is wrapped in *domain.ExhaustedError with the original cause preserved.
// The wait between attempts honors ctx cancellation.
func Do[T any](ctx context.Context, p Policy, log *zerolog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	attempts := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attempts = attempt + 1
		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				log.Info().Str("op", op).Int("retries", attempt).Msg("operation succeeded after retries")
			}
			return result, nil
		}
		lastErr = err

		if attempt >= maxRetries {
			break
		}
		if !Classify(p, err) {
			log.Debug().Str("op", op).Err(err).Msg("error not retryable")
			break
		}

		delay := p.Delay(attempt, retryAfterHint(err))
		metrics.IncRetry(op)
		log.Warn().
			Str("op", op).
			Int("attempt", attempt+1).
			Int("max_attempts", maxRetries+1).
			Dur("delay", delay).
			Err(err).
			Msg("transient failure, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			log.Error().Str("op", op).Err(ctx.Err()).Msg("retry wait interrupted")
			return zero, &domain.ExhaustedError{Attempts: attempts, Cause: lastErr}
		}
	}

	log.Error().Str("op", op).Err(lastErr).Msg("retry attempts exhausted")
	metrics.IncRetryExhausted(op)
	return zero, &domain.ExhaustedError{Attempts: attempts, Cause: lastErr}
}
