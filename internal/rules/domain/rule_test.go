package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// fakeRegistry is a minimal in-memory TypeRegistry double: every id it's
// told to "know about" exists, everything else doesn't.
type fakeRegistry struct {
	devices     map[valuetype.DeviceID]bool
	eventTypes  map[valuetype.EventTypeID]bool
	actionTypes map[valuetype.ActionTypeID]bool
	stateTypes  map[valuetype.StateTypeID]bool
	paramKinds  map[valuetype.ParamTypeID]valuetype.Kind
	eventParamKinds map[valuetype.EventTypeID]map[valuetype.ParamTypeID]valuetype.Kind
	states      map[valuetype.DeviceID]map[valuetype.StateTypeID]valuetype.TypedValue
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		devices:         map[valuetype.DeviceID]bool{},
		eventTypes:      map[valuetype.EventTypeID]bool{},
		actionTypes:     map[valuetype.ActionTypeID]bool{},
		stateTypes:      map[valuetype.StateTypeID]bool{},
		paramKinds:      map[valuetype.ParamTypeID]valuetype.Kind{},
		eventParamKinds: map[valuetype.EventTypeID]map[valuetype.ParamTypeID]valuetype.Kind{},
		states:          map[valuetype.DeviceID]map[valuetype.StateTypeID]valuetype.TypedValue{},
	}
}

func (r *fakeRegistry) DeviceExists(ctx context.Context, d valuetype.DeviceID) bool { return r.devices[d] }
func (r *fakeRegistry) EventTypeExists(ctx context.Context, e valuetype.EventTypeID) bool {
	return r.eventTypes[e]
}
func (r *fakeRegistry) ActionTypeExists(ctx context.Context, a valuetype.ActionTypeID) bool {
	return r.actionTypes[a]
}
func (r *fakeRegistry) StateTypeExists(ctx context.Context, s valuetype.StateTypeID) bool {
	return r.stateTypes[s]
}
func (r *fakeRegistry) ParamKind(ctx context.Context, p valuetype.ParamTypeID) (valuetype.Kind, bool) {
	k, ok := r.paramKinds[p]
	return k, ok
}
func (r *fakeRegistry) EventParamKind(ctx context.Context, e valuetype.EventTypeID, p valuetype.ParamTypeID) (valuetype.Kind, bool) {
	m, ok := r.eventParamKinds[e]
	if !ok {
		return "", false
	}
	k, ok := m[p]
	return k, ok
}
func (r *fakeRegistry) DeviceState(ctx context.Context, d valuetype.DeviceID, s valuetype.StateTypeID) (valuetype.TypedValue, bool, error) {
	m, ok := r.states[d]
	if !ok {
		return valuetype.TypedValue{}, false, nil
	}
	v, ok := m[s]
	return v, ok, nil
}

func validBaseRule(reg *fakeRegistry) Rule {
	device := valuetype.NewDeviceID()
	actionType := valuetype.NewActionTypeID()
	reg.devices[device] = true
	reg.actionTypes[actionType] = true

	return Rule{
		ID:      valuetype.NewRuleID(),
		Enabled: true,
		Actions: []RuleAction{
			{ActionTypeID: actionType, DeviceID: device},
		},
	}
}

func TestRule_Validate_RequiresID(t *testing.T) {
	reg := newFakeRegistry()
	r := validBaseRule(reg)
	r.ID = valuetype.RuleID{}

	err := r.Validate(context.Background(), reg)
	require.Error(t, err)
	assert.Equal(t, valuetype.InvalidRuleFormat, valuetype.KindOf(err))
}

func TestRule_Validate_RequiresActions(t *testing.T) {
	reg := newFakeRegistry()
	r := validBaseRule(reg)
	r.Actions = nil

	err := r.Validate(context.Background(), reg)
	require.Error(t, err)
	assert.Equal(t, valuetype.InvalidRuleFormat, valuetype.KindOf(err))
}

func TestRule_Validate_ExitActionsUnreachableOnEventTriggeredRule(t *testing.T) {
	reg := newFakeRegistry()
	r := validBaseRule(reg)

	eventType := valuetype.NewEventTypeID()
	device := r.Actions[0].DeviceID
	reg.eventTypes[eventType] = true

	r.EventDescriptors = []EventDescriptor{{EventTypeID: eventType, DeviceID: device}}
	r.ExitActions = r.Actions

	err := r.Validate(context.Background(), reg)
	require.Error(t, err)
	assert.Equal(t, valuetype.InvalidRuleFormat, valuetype.KindOf(err))
}

func TestRule_Validate_UnknownDeviceInActions(t *testing.T) {
	reg := newFakeRegistry()
	r := validBaseRule(reg)
	r.Actions[0].DeviceID = valuetype.NewDeviceID() // never registered

	err := r.Validate(context.Background(), reg)
	require.Error(t, err)
	assert.Equal(t, valuetype.NotFound, valuetype.KindOf(err))
}

func TestRule_Validate_EventBoundActionMustReferenceDescribedEvent(t *testing.T) {
	reg := newFakeRegistry()
	r := validBaseRule(reg)

	paramType := valuetype.NewParamTypeID()
	eventParamType := valuetype.NewParamTypeID()
	eventType := valuetype.NewEventTypeID()
	reg.paramKinds[paramType] = valuetype.KindInt
	reg.eventParamKinds[eventType] = map[valuetype.ParamTypeID]valuetype.Kind{eventParamType: valuetype.KindInt}

	r.Actions[0].Params = []RuleActionParam{
		{ParamTypeID: paramType, IsBinding: true, EventTypeID: eventType, EventParamTypeID: eventParamType},
	}
	// EventDescriptors left empty: the action's eventTypeId is never described.

	err := r.Validate(context.Background(), reg)
	require.Error(t, err)
	assert.Equal(t, valuetype.InvalidRuleFormat, valuetype.KindOf(err))
}

func TestRule_Validate_TypesNotMatchingOnEventBoundAction(t *testing.T) {
	reg := newFakeRegistry()
	r := validBaseRule(reg)

	paramType := valuetype.NewParamTypeID()
	eventParamType := valuetype.NewParamTypeID()
	eventType := valuetype.NewEventTypeID()
	reg.eventTypes[eventType] = true
	reg.paramKinds[paramType] = valuetype.KindInt
	reg.eventParamKinds[eventType] = map[valuetype.ParamTypeID]valuetype.Kind{eventParamType: valuetype.KindString}

	r.EventDescriptors = []EventDescriptor{{EventTypeID: eventType, DeviceID: r.Actions[0].DeviceID}}
	r.Actions[0].Params = []RuleActionParam{
		{ParamTypeID: paramType, IsBinding: true, EventTypeID: eventType, EventParamTypeID: eventParamType},
	}

	err := r.Validate(context.Background(), reg)
	require.Error(t, err)
	assert.Equal(t, valuetype.TypesNotMatching, valuetype.KindOf(err))
}

func TestRule_Validate_Success(t *testing.T) {
	reg := newFakeRegistry()
	r := validBaseRule(reg)

	err := r.Validate(context.Background(), reg)
	assert.NoError(t, err)
}

func TestRule_CanExecuteActions(t *testing.T) {
	reg := newFakeRegistry()
	r := validBaseRule(reg)
	r.Executable = true

	assert.NoError(t, r.CanExecuteActions())

	r.Executable = false
	err := r.CanExecuteActions()
	require.Error(t, err)
	assert.Equal(t, valuetype.NotExecutable, valuetype.KindOf(err))
}

func TestRule_CanExecuteActions_RejectsEventBased(t *testing.T) {
	reg := newFakeRegistry()
	r := validBaseRule(reg)
	r.Executable = true
	r.Actions[0].Params = []RuleActionParam{{IsBinding: true}}

	err := r.CanExecuteActions()
	require.Error(t, err)
	assert.Equal(t, valuetype.ContainsEventBasedAction, valuetype.KindOf(err))
}

func TestRule_CanExecuteExitActions_RequiresSome(t *testing.T) {
	reg := newFakeRegistry()
	r := validBaseRule(reg)
	r.Executable = true

	err := r.CanExecuteExitActions()
	require.Error(t, err)
	assert.Equal(t, valuetype.NoExitActions, valuetype.KindOf(err))

	r.ExitActions = r.Actions
	assert.NoError(t, r.CanExecuteExitActions())
}
