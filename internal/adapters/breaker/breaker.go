// Package breaker wraps side-effect calls in a circuit breaker so a failing
// collaborator is skipped quickly instead of tying up workers.
package breaker

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/okian/callledger/pkg/logger"
	"github.com/okian/callledger/pkg/metrics"
)

// Settings tune when the breaker opens.
type Settings struct {
	// MinRequests observed in the window before the breaker may trip.
	MinRequests uint32
	// FailureRatio at or above which the breaker opens.
	FailureRatio float64
	// Interval clears counts while closed.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// HalfOpenRequests allowed while probing.
	HalfOpenRequests uint32
}

// DefaultSettings opens after 60% failures over at least 10 calls.
func DefaultSettings() Settings {
	return Settings{
		MinRequests:      10,
		FailureRatio:     0.6,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		HalfOpenRequests: 3,
	}
}

// Breaker guards one collaborator.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// New returns a closed breaker named name.
func New(name string, s Settings, log logger.Logger) *Breaker {
	if log == nil {
		log = logger.Get().Named("breaker")
	}
	metrics.UpdateBreakerState(name, StateToFloat(gobreaker.StateClosed))

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < s.MinRequests {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn(context.Background(), "circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", StateToString(from)),
				logger.String("to", StateToString(to)))
			metrics.UpdateBreakerState(name, StateToFloat(to))
			metrics.RecordBreakerTransition(name, StateToString(from), StateToString(to))
		},
	})
	return &Breaker{name: name, cb: cb}
}

// Do runs fn through the breaker. Open and half-open rejections return
// gobreaker.ErrOpenState or gobreaker.ErrTooManyRequests.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoIgnoring runs fn but does not count errors matched by ignore as
// failures. Expected outcomes like a missing lead must not trip the breaker.
func (b *Breaker) DoIgnoring(fn func() error, ignore func(error) bool) error {
	var passed error
	err := b.Do(func() error {
		err := fn()
		if err != nil && ignore(err) {
			passed = err
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	return passed
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state as a string.
func (b *Breaker) State() string { return StateToString(b.cb.State()) }

// Rejected reports whether err came from an open or saturated breaker.
func Rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// StateToFloat converts a state to its gauge value.
func StateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// StateToString converts a state for logs and labels.
func StateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
