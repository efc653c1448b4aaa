package devices

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// deviceState bundles the state values of a single device.
type deviceState struct {
	states map[valuetype.StateTypeID]valuetype.TypedValue
}

// InMemoryRegistry is a test fake implementing Registry entirely in
// memory. It is also suitable as the registry backing a standalone
// deployment with no out-of-process device plugins at all.
type InMemoryRegistry struct {
	mu sync.RWMutex

	devices     map[valuetype.DeviceID]*deviceState
	stateTypes  map[valuetype.StateTypeID]struct{}
	eventTypes  map[valuetype.EventTypeID]struct{}
	actionTypes map[valuetype.ActionTypeID]struct{}
	paramKinds  map[valuetype.ParamTypeID]valuetype.Kind
	eventParamKinds map[eventParamKey]valuetype.Kind

	dispatched []ActionRequest
}

type eventParamKey struct {
	event valuetype.EventTypeID
	param valuetype.ParamTypeID
}

// NewInMemoryRegistry returns an empty registry; use the Register* methods
// to seed devices and type catalogs before use.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		devices:         make(map[valuetype.DeviceID]*deviceState),
		stateTypes:      make(map[valuetype.StateTypeID]struct{}),
		eventTypes:      make(map[valuetype.EventTypeID]struct{}),
		actionTypes:     make(map[valuetype.ActionTypeID]struct{}),
		paramKinds:      make(map[valuetype.ParamTypeID]valuetype.Kind),
		eventParamKinds: make(map[eventParamKey]valuetype.Kind),
	}
}

// RegisterDevice adds a device with no state set.
func (r *InMemoryRegistry) RegisterDevice(id valuetype.DeviceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[id]; !ok {
		r.devices[id] = &deviceState{states: make(map[valuetype.StateTypeID]valuetype.TypedValue)}
	}
}

// SetDeviceState sets a device's current value for a state type,
// registering the device and state type if either is new.
func (r *InMemoryRegistry) SetDeviceState(device valuetype.DeviceID, stateType valuetype.StateTypeID, v valuetype.TypedValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[device]
	if !ok {
		d = &deviceState{states: make(map[valuetype.StateTypeID]valuetype.TypedValue)}
		r.devices[device] = d
	}
	d.states[stateType] = v
	r.stateTypes[stateType] = struct{}{}
}

// RegisterStateType/EventType/ActionType add a type catalog entry without
// requiring a seeded device.
func (r *InMemoryRegistry) RegisterStateType(id valuetype.StateTypeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stateTypes[id] = struct{}{}
}

func (r *InMemoryRegistry) RegisterEventType(id valuetype.EventTypeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventTypes[id] = struct{}{}
}

func (r *InMemoryRegistry) RegisterActionType(id valuetype.ActionTypeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actionTypes[id] = struct{}{}
}

// RegisterParamKind declares the value kind of an action param type.
func (r *InMemoryRegistry) RegisterParamKind(id valuetype.ParamTypeID, kind valuetype.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paramKinds[id] = kind
}

// RegisterEventParamKind declares the value kind of a param carried by a
// specific event type.
func (r *InMemoryRegistry) RegisterEventParamKind(event valuetype.EventTypeID, param valuetype.ParamTypeID, kind valuetype.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventTypes[event] = struct{}{}
	r.eventParamKinds[eventParamKey{event, param}] = kind
}

func (r *InMemoryRegistry) DeviceState(_ context.Context, device valuetype.DeviceID, stateType valuetype.StateTypeID) (valuetype.TypedValue, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[device]
	if !ok {
		return valuetype.TypedValue{}, false, nil
	}
	v, ok := d.states[stateType]
	return v, ok, nil
}

func (r *InMemoryRegistry) DeviceExists(_ context.Context, device valuetype.DeviceID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.devices[device]
	return ok
}

func (r *InMemoryRegistry) StateTypeExists(_ context.Context, stateType valuetype.StateTypeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.stateTypes[stateType]
	return ok
}

func (r *InMemoryRegistry) EventTypeExists(_ context.Context, eventType valuetype.EventTypeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.eventTypes[eventType]
	return ok
}

func (r *InMemoryRegistry) ActionTypeExists(_ context.Context, actionType valuetype.ActionTypeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actionTypes[actionType]
	return ok
}

func (r *InMemoryRegistry) ParamKind(_ context.Context, paramType valuetype.ParamTypeID) (valuetype.Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.paramKinds[paramType]
	return k, ok
}

func (r *InMemoryRegistry) EventParamKind(_ context.Context, eventType valuetype.EventTypeID, paramType valuetype.ParamTypeID) (valuetype.Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.eventParamKinds[eventParamKey{eventType, paramType}]
	return k, ok
}

// Dispatch records the action once its device and action type are known;
// it does not change any device state. Tests that need to assert on
// dispatched actions should use Dispatched().
func (r *InMemoryRegistry) Dispatch(_ context.Context, action ActionRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[action.DeviceID]; !ok {
		return valuetype.NewError(valuetype.NotFound, "dispatch: unknown device")
	}
	if _, ok := r.actionTypes[action.ActionTypeID]; !ok {
		return valuetype.NewError(valuetype.NotFound, "dispatch: unknown action type")
	}
	r.dispatched = append(r.dispatched, action)
	return nil
}

// Dispatched returns every action recorded by Dispatch, for test
// assertions.
func (r *InMemoryRegistry) Dispatched() []ActionRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ActionRequest, len(r.dispatched))
	copy(out, r.dispatched)
	return out
}
