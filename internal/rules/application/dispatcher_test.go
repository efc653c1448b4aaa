package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/devices"
	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

type failingRegistry struct {
	*devices.InMemoryRegistry
	failNext int
	calls    int
}

func (f *failingRegistry) Dispatch(ctx context.Context, req devices.ActionRequest) error {
	f.calls++
	if f.failNext > 0 {
		f.failNext--
		return errors.New("device plugin unreachable")
	}
	return f.InMemoryRegistry.Dispatch(ctx, req)
}

func TestActionDispatcher_Dispatch_Success(t *testing.T) {
	registry := devices.NewInMemoryRegistry()
	device := valuetype.NewDeviceID()
	actionType := valuetype.NewActionTypeID()
	registry.RegisterDevice(device)
	registry.RegisterActionType(actionType)

	d := NewActionDispatcher(registry, nil)
	d.Dispatch(context.Background(), devices.ActionRequest{ActionTypeID: actionType, DeviceID: device})

	require.Len(t, registry.Dispatched(), 1)
}

func TestActionDispatcher_Dispatch_TripsBreakerAfterConsecutiveFailures(t *testing.T) {
	inner := devices.NewInMemoryRegistry()
	actionType := valuetype.NewActionTypeID()
	device := valuetype.NewDeviceID()
	inner.RegisterDevice(device)
	inner.RegisterActionType(actionType)

	failing := &failingRegistry{InMemoryRegistry: inner, failNext: 10}
	d := NewActionDispatcher(failing, nil)

	req := devices.ActionRequest{ActionTypeID: actionType, DeviceID: device}
	for i := 0; i < 5; i++ {
		d.Dispatch(context.Background(), req)
	}

	breaker := d.breakerFor(actionType)
	assert.NotEqual(t, 0, int(breaker.State()), "breaker should have tripped open after 5 consecutive failures")
	// Subsequent calls short-circuit without reaching the registry.
	callsBeforeOpen := failing.calls
	d.Dispatch(context.Background(), req)
	assert.Equal(t, callsBeforeOpen, failing.calls, "an open breaker must not invoke the registry")
}
