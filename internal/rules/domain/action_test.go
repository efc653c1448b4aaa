package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

func TestRuleAction_EventBased(t *testing.T) {
	literal := RuleAction{Params: []RuleActionParam{{HasLiteral: true, Value: valuetype.NewInt(1)}}}
	assert.False(t, literal.EventBased())

	bound := RuleAction{Params: []RuleActionParam{{IsBinding: true}}}
	assert.True(t, bound.EventBased())
}

func TestRuleAction_ResolveBindings(t *testing.T) {
	eventParamType := valuetype.NewParamTypeID()
	actionParamType := valuetype.NewParamTypeID()

	action := RuleAction{
		ActionTypeID: valuetype.NewActionTypeID(),
		DeviceID:     valuetype.NewDeviceID(),
		Params: []RuleActionParam{
			{ParamTypeID: actionParamType, IsBinding: true, EventParamTypeID: eventParamType},
		},
	}

	event := Event{
		Params:     map[valuetype.ParamTypeID]valuetype.TypedValue{eventParamType: valuetype.NewInt(42)},
		OccurredAt: time.Now(),
	}

	resolved, ok := action.ResolveBindings(event)
	require.True(t, ok)
	require.Len(t, resolved.Params, 1)
	assert.True(t, resolved.Params[0].HasLiteral)
	assert.False(t, resolved.Params[0].IsBinding)
	v, _ := resolved.Params[0].Value.Int()
	assert.Equal(t, int64(42), v)
}

func TestRuleAction_ResolveBindings_MissingEventParam(t *testing.T) {
	action := RuleAction{
		Params: []RuleActionParam{{IsBinding: true, EventParamTypeID: valuetype.NewParamTypeID()}},
	}
	event := Event{Params: map[valuetype.ParamTypeID]valuetype.TypedValue{}}

	_, ok := action.ResolveBindings(event)
	assert.False(t, ok)
}

func TestRuleAction_ResolveBindings_PassesThroughLiterals(t *testing.T) {
	action := RuleAction{
		Params: []RuleActionParam{{ParamTypeID: valuetype.NewParamTypeID(), HasLiteral: true, Value: valuetype.NewString("on")}},
	}
	resolved, ok := action.ResolveBindings(Event{})
	require.True(t, ok)
	require.Len(t, resolved.Params, 1)
	assert.True(t, resolved.Params[0].HasLiteral)
}
