package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/felixgeelhaar/meridian/internal/devices"
	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// ActionDispatcher sends resolved actions to a devices.Registry, with one
// circuit breaker per action type so a single wedged device plugin can't
// stall the engine's action fan-out on every rule that targets it.
type ActionDispatcher struct {
	registry devices.Registry
	logger   *slog.Logger

	breakers map[valuetype.ActionTypeID]*gobreaker.CircuitBreaker[any]
}

// NewActionDispatcher builds a dispatcher around registry, logging via
// logger (or slog.Default if nil).
func NewActionDispatcher(registry devices.Registry, logger *slog.Logger) *ActionDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActionDispatcher{
		registry: registry,
		logger:   logger,
		breakers: make(map[valuetype.ActionTypeID]*gobreaker.CircuitBreaker[any]),
	}
}

func (d *ActionDispatcher) breakerFor(actionType valuetype.ActionTypeID) *gobreaker.CircuitBreaker[any] {
	if b, ok := d.breakers[actionType]; ok {
		return b
	}
	settings := gobreaker.Settings{
		Name:        actionType.String(),
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Warn("action dispatch circuit breaker state changed",
				"action_type", name, "from", from.String(), "to", to.String())
		},
	}
	b := gobreaker.NewCircuitBreaker[any](settings)
	d.breakers[actionType] = b
	return b
}

// Dispatch sends req to the registry through its action type's circuit
// breaker and logs the outcome. It is synchronous: it returns only after
// the registry call has returned, and RuleEngine.fireActions calls it
// inline, so the engine waits for each dispatch in turn.
func (d *ActionDispatcher) Dispatch(ctx context.Context, req devices.ActionRequest) {
	breaker := d.breakerFor(req.ActionTypeID)
	_, err := breaker.Execute(func() (any, error) {
		return nil, d.registry.Dispatch(ctx, req)
	})
	if err != nil {
		d.logger.Error("action dispatch failed",
			"action_type", req.ActionTypeID.String(),
			"device", req.DeviceID.String(),
			"error", err)
		return
	}
	d.logger.Debug("action dispatched",
		"action_type", req.ActionTypeID.String(),
		"device", req.DeviceID.String())
}
