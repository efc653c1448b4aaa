package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/rules/domain"
	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

func sampleRule() domain.Rule {
	now := time.Now().Truncate(time.Second)
	return domain.Rule{
		ID:      valuetype.NewRuleID(),
		Name:    "evening lights",
		Enabled: true,
		TimeDescriptor: domain.TimeDescriptor{
			CalendarItems: []domain.CalendarItem{{DateTime: &now, Duration: 30}},
		},
		EventDescriptors: []domain.EventDescriptor{
			{EventTypeID: valuetype.NewEventTypeID(), DeviceID: valuetype.NewDeviceID()},
		},
		HasStateEvaluator: true,
		StateEvaluator: domain.StateEvaluator{
			Leaf: &valuetype.StateDescriptor{
				DeviceID:    valuetype.NewDeviceID(),
				StateTypeID: valuetype.NewStateTypeID(),
				Operator:    valuetype.OpEqual,
				Value:       valuetype.NewBool(true),
			},
		},
		Actions: []domain.RuleAction{
			{
				ActionTypeID: valuetype.NewActionTypeID(),
				DeviceID:     valuetype.NewDeviceID(),
				Params: []domain.RuleActionParam{
					{ParamTypeID: valuetype.NewParamTypeID(), HasLiteral: true, Value: valuetype.NewInt(7)},
				},
			},
		},
	}
}

func TestFileRuleStore_SaveGetRoundTrip(t *testing.T) {
	store, err := NewFileRuleStore(t.TempDir())
	require.NoError(t, err)

	r := sampleRule()
	require.NoError(t, store.Save(context.Background(), r))

	got, ok, err := store.Get(context.Background(), r.ID)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, r.Name, got.Name)
	require.Len(t, got.TimeDescriptor.CalendarItems, 1)
	assert.True(t, r.TimeDescriptor.CalendarItems[0].DateTime.Equal(*got.TimeDescriptor.CalendarItems[0].DateTime))
	require.Len(t, got.EventDescriptors, 1)
	assert.Equal(t, r.EventDescriptors[0].EventTypeID, got.EventDescriptors[0].EventTypeID)
	require.True(t, got.HasStateEvaluator)
	assert.Equal(t, r.StateEvaluator.Leaf.StateTypeID, got.StateEvaluator.Leaf.StateTypeID)
	require.Len(t, got.Actions, 1)
	require.Len(t, got.Actions[0].Params, 1)
	v, _ := got.Actions[0].Params[0].Value.Int()
	assert.Equal(t, int64(7), v)
}

func TestFileRuleStore_Get_NotFound(t *testing.T) {
	store, err := NewFileRuleStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := store.Get(context.Background(), valuetype.NewRuleID())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileRuleStore_List(t *testing.T) {
	store, err := NewFileRuleStore(t.TempDir())
	require.NoError(t, err)

	a, b := sampleRule(), sampleRule()
	require.NoError(t, store.Save(context.Background(), a))
	require.NoError(t, store.Save(context.Background(), b))

	all, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFileRuleStore_Delete(t *testing.T) {
	store, err := NewFileRuleStore(t.TempDir())
	require.NoError(t, err)

	r := sampleRule()
	require.NoError(t, store.Save(context.Background(), r))
	require.NoError(t, store.Delete(context.Background(), r.ID))

	_, ok, err := store.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting something already gone is not an error.
	assert.NoError(t, store.Delete(context.Background(), r.ID))
}

func TestFileRuleStore_Save_Overwrites(t *testing.T) {
	store, err := NewFileRuleStore(t.TempDir())
	require.NoError(t, err)

	r := sampleRule()
	require.NoError(t, store.Save(context.Background(), r))

	r.Name = "renamed"
	require.NoError(t, store.Save(context.Background(), r))

	got, ok, err := store.Get(context.Background(), r.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "renamed", got.Name)
}

func TestMarshalUnmarshalRule_RoundTrip(t *testing.T) {
	r := sampleRule()
	raw, err := MarshalRule(r)
	require.NoError(t, err)

	got, err := UnmarshalRule(raw)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, r.Name, got.Name)
}
