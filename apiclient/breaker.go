package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig tunes the circuit breaker wrapped around the transport.
type BreakerConfig struct {
	Name        string
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// DefaultBreakerConfig trips after five consecutive failures and lets one request through again after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:        "chama-api",
		MaxFailures: 5,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
	}
}

func newBreaker(cfg BreakerConfig, log *zap.Logger) *gobreaker.CircuitBreaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 1
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// breakerTransport counts transport errors and 5xx answers as breaker
// failures. A 5xx response is still handed back to the caller so the
// server detail text survives.
type breakerTransport struct {
	next http.RoundTripper
	cb   *gobreaker.CircuitBreaker
}

type upstreamStatusError struct {
	resp *http.Response
}

func (e *upstreamStatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.resp.StatusCode)
}

func (t breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.cb.Execute(func() (interface{}, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &upstreamStatusError{resp: resp}
		}
		return resp, nil
	})
	if err != nil {
		if statusErr, ok := err.(*upstreamStatusError); ok {
			return statusErr.resp, nil
		}
		return nil, err
	}
	return res.(*http.Response), nil
}
