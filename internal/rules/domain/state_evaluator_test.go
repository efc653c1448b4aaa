package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

func leaf(reg *fakeRegistry, device valuetype.DeviceID, value valuetype.TypedValue, op valuetype.Operator) StateEvaluator {
	st := valuetype.NewStateTypeID()
	reg.stateTypes[st] = true
	if reg.states[device] == nil {
		reg.states[device] = map[valuetype.StateTypeID]valuetype.TypedValue{}
	}
	reg.states[device][st] = value
	return StateEvaluator{Leaf: &valuetype.StateDescriptor{StateTypeID: st, DeviceID: device, Operator: op, Value: value}}
}

func TestStateEvaluator_LeafEvaluate(t *testing.T) {
	reg := newFakeRegistry()
	device := valuetype.NewDeviceID()
	e := leaf(reg, device, valuetype.NewInt(10), valuetype.OpEqual)

	assert.True(t, e.Evaluate(context.Background(), reg))
}

func TestStateEvaluator_LeafDanglingDeviceIsFalse(t *testing.T) {
	e := StateEvaluator{Leaf: &valuetype.StateDescriptor{
		StateTypeID: valuetype.NewStateTypeID(),
		DeviceID:    valuetype.NewDeviceID(),
		Operator:    valuetype.OpEqual,
		Value:       valuetype.NewInt(1),
	}}
	reg := newFakeRegistry() // state type never registered
	assert.False(t, e.Evaluate(context.Background(), reg))
}

func TestStateEvaluator_AND(t *testing.T) {
	reg := newFakeRegistry()
	d1, d2 := valuetype.NewDeviceID(), valuetype.NewDeviceID()
	a := leaf(reg, d1, valuetype.NewBool(true), valuetype.OpEqual)
	b := leaf(reg, d2, valuetype.NewBool(true), valuetype.OpEqual)

	tree := StateEvaluator{Operator: EvalAND, Children: []StateEvaluator{a, b}}
	assert.True(t, tree.Evaluate(context.Background(), reg))

	reg.states[d2][b.Leaf.StateTypeID] = valuetype.NewBool(false)
	assert.False(t, tree.Evaluate(context.Background(), reg))
}

func TestStateEvaluator_OR(t *testing.T) {
	reg := newFakeRegistry()
	d1, d2 := valuetype.NewDeviceID(), valuetype.NewDeviceID()
	a := leaf(reg, d1, valuetype.NewBool(false), valuetype.OpEqual)
	b := leaf(reg, d2, valuetype.NewBool(true), valuetype.OpEqual)

	tree := StateEvaluator{Operator: EvalOR, Children: []StateEvaluator{a, b}}
	assert.True(t, tree.Evaluate(context.Background(), reg))
}

func TestStateEvaluator_ContainsAndRemoveDevice(t *testing.T) {
	reg := newFakeRegistry()
	d1, d2 := valuetype.NewDeviceID(), valuetype.NewDeviceID()
	a := leaf(reg, d1, valuetype.NewInt(1), valuetype.OpEqual)
	b := leaf(reg, d2, valuetype.NewInt(2), valuetype.OpEqual)
	tree := StateEvaluator{Operator: EvalAND, Children: []StateEvaluator{a, b}}

	assert.True(t, tree.ContainsDevice(d1))

	pruned, ok := tree.RemoveDevice(d1)
	require.True(t, ok)
	assert.False(t, pruned.ContainsDevice(d1))
	assert.True(t, pruned.ContainsDevice(d2))

	_, ok = pruned.RemoveDevice(d2)
	assert.False(t, ok, "removing the last leaf should collapse the whole tree")
}

func TestStateEvaluator_Validate(t *testing.T) {
	reg := newFakeRegistry()
	device := valuetype.NewDeviceID()
	good := leaf(reg, device, valuetype.NewInt(1), valuetype.OpEqual)
	assert.NoError(t, good.Validate(context.Background(), reg))

	bad := StateEvaluator{Leaf: &valuetype.StateDescriptor{StateTypeID: valuetype.NewStateTypeID()}}
	err := bad.Validate(context.Background(), reg)
	require.Error(t, err)
	assert.Equal(t, valuetype.InvalidStateEvaluatorValue, valuetype.KindOf(err))

	empty := StateEvaluator{Operator: EvalAND}
	err = empty.Validate(context.Background(), reg)
	require.Error(t, err)
	assert.Equal(t, valuetype.InvalidStateEvaluatorValue, valuetype.KindOf(err))
}

func TestStateEvaluator_ReferencesStateType(t *testing.T) {
	reg := newFakeRegistry()
	device := valuetype.NewDeviceID()
	e := leaf(reg, device, valuetype.NewInt(1), valuetype.OpEqual)

	assert.True(t, e.ReferencesStateType(e.Leaf.StateTypeID))
	assert.False(t, e.ReferencesStateType(valuetype.NewStateTypeID()))
}
