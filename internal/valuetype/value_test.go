package valuetype

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompare_SameKind(t *testing.T) {
	ok, err := Compare(NewInt(5), OpGreaterThan, NewInt(3))
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = Compare(NewString("abc"), OpEqual, NewString("abc"))
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = Compare(NewBool(true), OpNotEqual, NewBool(false))
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestCompare_NumericCrossKind(t *testing.T) {
	ok, err := Compare(NewInt(5), OpLessThan, NewDouble(5.5))
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestCompare_TypeMismatch(t *testing.T) {
	_, err := Compare(NewString("x"), OpEqual, NewBool(true))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestCompare_Timestamp(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)
	ok, err := Compare(NewTimestamp(later), OpGreaterThan, NewTimestamp(now))
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestParamType_Valid(t *testing.T) {
	min := NewInt(0)
	max := NewInt(100)
	pt := ParamType{ValueKind: KindInt, Min: &min, Max: &max}

	assert.True(t, pt.Valid(NewInt(50)))
	assert.False(t, pt.Valid(NewInt(150)))
	assert.False(t, pt.Valid(NewInt(-1)))
	assert.False(t, pt.Valid(NewString("nope")))
}

func TestParamType_AllowedValues(t *testing.T) {
	pt := ParamType{
		ValueKind:     KindString,
		AllowedValues: []TypedValue{NewString("on"), NewString("off")},
	}
	assert.True(t, pt.Valid(NewString("on")))
	assert.False(t, pt.Valid(NewString("dim")))
}

func TestParamDescriptor_Equals(t *testing.T) {
	a := ParamDescriptor{ParamTypeID: NewParamTypeID(), Operator: OpEqual, Value: NewInt(1)}
	b := a
	assert.True(t, a.Equals(b))

	b.Value = NewInt(2)
	assert.False(t, a.Equals(b))
}

func TestIDs_ZeroAndRoundTrip(t *testing.T) {
	var zero RuleID
	assert.True(t, zero.Zero())

	id := NewRuleID()
	assert.False(t, id.Zero())

	parsed, err := ParseRuleID(id.String())
	assert.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestTypedError_KindOf(t *testing.T) {
	err := NewError(InvalidRuleFormat, "bad rule")
	assert.Equal(t, InvalidRuleFormat, KindOf(err))
	assert.Equal(t, NoError, KindOf(nil))
}
