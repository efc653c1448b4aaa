package valuetype

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the declared type tag of a TypedValue.
type Kind string

const (
	KindBool      Kind = "bool"
	KindInt       Kind = "int"
	KindDouble    Kind = "double"
	KindString    Kind = "string"
	KindBytes     Kind = "bytes"
	KindUUID      Kind = "uuid"
	KindTimestamp Kind = "timestamp"
)

// Operator is a comparison operator usable in a descriptor.
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "≠"
	OpLessThan     Operator = "<"
	OpLessEqual    Operator = "≤"
	OpGreaterThan  Operator = ">"
	OpGreaterEqual Operator = "≥"
)

// ErrTypeMismatch is returned when two values cannot be compared because
// their kinds are incompatible (and not both numeric).
var ErrTypeMismatch = errors.New("valuetype: type mismatch")

// ErrUnknownOperator is returned for an operator not in the fixed set.
var ErrUnknownOperator = errors.New("valuetype: unknown operator")

// TypedValue is a tagged union over {bool, int, double, string, bytes,
// uuid, timestamp}. Exactly one field matching Kind is meaningful.
type TypedValue struct {
	Kind Kind

	boolV      bool
	intV       int64
	doubleV    float64
	stringV    string
	bytesV     []byte
	uuidV      uuid.UUID
	timestampV time.Time
}

func NewBool(v bool) TypedValue    { return TypedValue{Kind: KindBool, boolV: v} }
func NewInt(v int64) TypedValue    { return TypedValue{Kind: KindInt, intV: v} }
func NewDouble(v float64) TypedValue { return TypedValue{Kind: KindDouble, doubleV: v} }
func NewString(v string) TypedValue { return TypedValue{Kind: KindString, stringV: v} }
func NewBytes(v []byte) TypedValue { return TypedValue{Kind: KindBytes, bytesV: append([]byte(nil), v...)} }
func NewUUID(v uuid.UUID) TypedValue { return TypedValue{Kind: KindUUID, uuidV: v} }
func NewTimestamp(v time.Time) TypedValue { return TypedValue{Kind: KindTimestamp, timestampV: v.UTC()} }

func (v TypedValue) Bool() (bool, bool)      { return v.boolV, v.Kind == KindBool }
func (v TypedValue) Int() (int64, bool)      { return v.intV, v.Kind == KindInt }
func (v TypedValue) Double() (float64, bool) { return v.doubleV, v.Kind == KindDouble }
func (v TypedValue) String() string {
	switch v.Kind {
	case KindBool:
		return fmt.Sprintf("%t", v.boolV)
	case KindInt:
		return fmt.Sprintf("%d", v.intV)
	case KindDouble:
		return fmt.Sprintf("%g", v.doubleV)
	case KindString:
		return v.stringV
	case KindBytes:
		return base64.StdEncoding.EncodeToString(v.bytesV)
	case KindUUID:
		return v.uuidV.String()
	case KindTimestamp:
		return v.timestampV.Format(time.RFC3339)
	default:
		return ""
	}
}
func (v TypedValue) Bytes() ([]byte, bool)       { return v.bytesV, v.Kind == KindBytes }
func (v TypedValue) UUID() (uuid.UUID, bool)     { return v.uuidV, v.Kind == KindUUID }
func (v TypedValue) Timestamp() (time.Time, bool) { return v.timestampV, v.Kind == KindTimestamp }

// numeric reports whether v is int or double, and its value widened to
// float64. Widening between int and double is the only cross-kind
// comparison permitted by the spec.
func (v TypedValue) numeric() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.intV), true
	case KindDouble:
		return v.doubleV, true
	default:
		return 0, false
	}
}

// Compare evaluates `v op other` and returns the boolean result. String
// comparison is case-sensitive (Go's native string ordering). Numeric
// widening is permitted only between int and double; any other kind
// mismatch is ErrTypeMismatch.
func Compare(v TypedValue, op Operator, other TypedValue) (bool, error) {
	if v.Kind == other.Kind {
		return compareSameKind(v, op, other)
	}
	if vf, ok := v.numeric(); ok {
		if of, ok2 := other.numeric(); ok2 {
			return applyOrdering(op, cmpFloat(vf, of))
		}
	}
	return false, fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, v.Kind, other.Kind)
}

func compareSameKind(v TypedValue, op Operator, other TypedValue) (bool, error) {
	switch v.Kind {
	case KindBool:
		return applyOrdering(op, cmpBool(v.boolV, other.boolV))
	case KindInt:
		return applyOrdering(op, cmpInt(v.intV, other.intV))
	case KindDouble:
		return applyOrdering(op, cmpFloat(v.doubleV, other.doubleV))
	case KindString:
		return applyOrdering(op, cmpString(v.stringV, other.stringV))
	case KindBytes:
		if op != OpEqual && op != OpNotEqual {
			return false, fmt.Errorf("%w: bytes only supports = and ≠", ErrUnknownOperator)
		}
		eq := string(v.bytesV) == string(other.bytesV)
		if op == OpEqual {
			return eq, nil
		}
		return !eq, nil
	case KindUUID:
		if op != OpEqual && op != OpNotEqual {
			return false, fmt.Errorf("%w: uuid only supports = and ≠", ErrUnknownOperator)
		}
		eq := v.uuidV == other.uuidV
		if op == OpEqual {
			return eq, nil
		}
		return !eq, nil
	case KindTimestamp:
		return applyOrdering(op, cmpTime(v.timestampV, other.timestampV))
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownOperator, v.Kind)
	}
}

func cmpBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}
func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
func cmpTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func applyOrdering(op Operator, cmp int) (bool, error) {
	switch op {
	case OpEqual:
		return cmp == 0, nil
	case OpNotEqual:
		return cmp != 0, nil
	case OpLessThan:
		return cmp < 0, nil
	case OpLessEqual:
		return cmp <= 0, nil
	case OpGreaterThan:
		return cmp > 0, nil
	case OpGreaterEqual:
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownOperator, op)
	}
}
