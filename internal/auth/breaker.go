package auth

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/config"
	"github.com/chatstack/routing-service/internal/domain"
	"github.com/chatstack/routing-service/internal/observability"
	apperrors "github.com/chatstack/routing-service/pkg/util"
)

// ErrBackendMiss marks a clean "token unknown" answer from a backend.
// Misses are expected traffic and must not count toward tripping the
// breaker.
var ErrBackendMiss = errors.New("token not recognized")

// NewUserBreaker builds one circuit breaker guarding a token backend.
// Two such breakers run per process: one for the database token lookup,
// one for the OIDC userinfo call.
func NewUserBreaker(name string, cfg config.BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker[*domain.User] {
	threshold := uint32(cfg.FailureThreshold)
	if threshold == 0 {
		threshold = 5
	}
	recovery := time.Duration(cfg.RecoveryTimeoutSec) * time.Second
	if recovery <= 0 {
		recovery = 30 * time.Second
	}

	return gobreaker.NewCircuitBreaker[*domain.User](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     recovery,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// Only infrastructure failures count; a miss is a valid answer.
			return err == nil || errors.Is(err, ErrBackendMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			observability.SetBreakerState(name, breakerStateValue(to))
		},
	})
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// IsBreakerOpen reports whether err is the breaker's fail-fast rejection.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// MapBreakerError converts a breaker rejection into the upstream-degraded
// domain error.
func MapBreakerError(backend string, err error) error {
	if IsBreakerOpen(err) {
		return apperrors.NewUpstreamDegraded(backend)
	}
	return err
}
