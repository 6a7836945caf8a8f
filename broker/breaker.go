package broker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerGateway wraps a Gateway with a circuit breaker. After repeated
// venue failures the breaker opens and further orders fail fast instead
// of hammering a dead or rejecting venue. It never retries: each call is
// still a single attempt.
type BreakerGateway struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker
}

// BreakerSettings controls when the breaker trips and how long it stays
// open.
type BreakerSettings struct {
	Name        string
	MaxFailures uint32
	OpenFor     time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:        "gateway",
		MaxFailures: 5,
		OpenFor:     30 * time.Second,
	}
}

func NewBreakerGateway(next Gateway, s BreakerSettings) *BreakerGateway {
	if s.MaxFailures == 0 {
		s.MaxFailures = DefaultBreakerSettings().MaxFailures
	}
	if s.OpenFor == 0 {
		s.OpenFor = DefaultBreakerSettings().OpenFor
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    s.Name,
		Timeout: s.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		// A close against a vanished ticket is a stale-reference skip,
		// not a venue failure: it must not push the breaker open.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoPosition)
		},
	})
	return &BreakerGateway{next: next, cb: cb}
}

func (g *BreakerGateway) Open(ctx context.Context, req OrderRequest) (OrderFill, error) {
	out, err := g.cb.Execute(func() (interface{}, error) {
		return g.next.Open(ctx, req)
	})
	if err != nil {
		return OrderFill{}, mapBreakerErr(err, "open")
	}
	return out.(OrderFill), nil
}

func (g *BreakerGateway) Close(ctx context.Context, ticket string) error {
	_, err := g.cb.Execute(func() (interface{}, error) {
		return nil, g.next.Close(ctx, ticket)
	})
	if err != nil {
		return mapBreakerErr(err, "close")
	}
	return nil
}

// ModifyStops passes through when the wrapped gateway supports it.
func (g *BreakerGateway) ModifyStops(ctx context.Context, ticket string, sl, tp float64) error {
	sm, ok := g.next.(StopModifier)
	if !ok {
		return errors.New("gateway does not support stop modification")
	}
	return sm.ModifyStops(ctx, ticket, sl, tp)
}

func mapBreakerErr(err error, op string) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return NewExecError(op, CodeTradeDisabled)
	}
	return err
}
