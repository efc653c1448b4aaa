// Package devices defines the abstract boundary the rule engine and RPC
// core use to talk to physical/virtual devices. Device plugins themselves
// are out of scope for this module; only the registry contract, an
// in-memory fake for tests, and an out-of-process adapter live here.
package devices

import (
	"context"

	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// ActionRequest is a fully-resolved action dispatch: every binding param
// has already been substituted with a literal by the rule engine before
// it reaches the registry.
type ActionRequest struct {
	ActionTypeID valuetype.ActionTypeID
	DeviceID     valuetype.DeviceID
	Params       map[valuetype.ParamTypeID]valuetype.TypedValue
}

// Registry is the abstract device/type catalog and action dispatch
// boundary. internal/rules/domain depends only on its narrower
// DeviceStateReader/TypeRegistry slices; this is the full contract an
// adapter (in-memory fake, or the out-of-process plugin client) must
// satisfy.
type Registry interface {
	DeviceState(ctx context.Context, device valuetype.DeviceID, stateType valuetype.StateTypeID) (valuetype.TypedValue, bool, error)
	DeviceExists(ctx context.Context, device valuetype.DeviceID) bool
	StateTypeExists(ctx context.Context, stateType valuetype.StateTypeID) bool
	EventTypeExists(ctx context.Context, eventType valuetype.EventTypeID) bool
	ActionTypeExists(ctx context.Context, actionType valuetype.ActionTypeID) bool
	ParamKind(ctx context.Context, paramType valuetype.ParamTypeID) (valuetype.Kind, bool)
	EventParamKind(ctx context.Context, eventType valuetype.EventTypeID, paramType valuetype.ParamTypeID) (valuetype.Kind, bool)
	Dispatch(ctx context.Context, action ActionRequest) error
}
