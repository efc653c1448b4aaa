// Package domain contains the automation rule domain model: the
// StateEvaluator tree, TimeDescriptor, EventDescriptor, RuleAction, and
// the Rule aggregate itself with its consistency invariants.
package domain

import (
	"context"

	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// DeviceStateReader is the narrow slice of the DeviceRegistry that a
// StateEvaluator needs to read a device's current state. The full
// DeviceRegistry contract lives in package devices; rules/domain only
// depends on this reader so the rule engine can be unit tested against
// a trivial fake without pulling in plugin transport concerns.
type DeviceStateReader interface {
	DeviceState(ctx context.Context, device valuetype.DeviceID, stateType valuetype.StateTypeID) (valuetype.TypedValue, bool, error)
	StateTypeExists(ctx context.Context, stateType valuetype.StateTypeID) bool
}

// EvalOperator combines child evaluators.
type EvalOperator string

const (
	EvalAND EvalOperator = "AND"
	EvalOR  EvalOperator = "OR"
)

// StateEvaluator is a recursive tree: either a single StateDescriptor
// leaf, or an operator node (AND/OR) with one or more child evaluators.
type StateEvaluator struct {
	// Leaf, when non-nil, makes this node a leaf.
	Leaf *valuetype.StateDescriptor

	// Operator/Children make this node an operator (non-leaf); used
	// only when Leaf is nil.
	Operator EvalOperator
	Children []StateEvaluator
}

// IsLeaf reports whether this node is a StateDescriptor leaf.
func (e StateEvaluator) IsLeaf() bool { return e.Leaf != nil }

// Evaluate walks the tree recursively, reading device states from r. A
// leaf whose state type doesn't exist, or whose device has no such
// state, evaluates to false rather than erroring — a dangling reference
// is not a fatal condition (§3 invariants / §4.F failure semantics).
func (e StateEvaluator) Evaluate(ctx context.Context, r DeviceStateReader) bool {
	if e.IsLeaf() {
		d := *e.Leaf
		if !r.StateTypeExists(ctx, d.StateTypeID) {
			return false
		}
		v, ok, err := r.DeviceState(ctx, d.DeviceID, d.StateTypeID)
		if err != nil || !ok {
			return false
		}
		matched, err := valuetype.Compare(v, d.Operator, d.Value)
		return err == nil && matched
	}

	if len(e.Children) == 0 {
		return false
	}
	switch e.Operator {
	case EvalOR:
		for _, c := range e.Children {
			if c.Evaluate(ctx, r) {
				return true
			}
		}
		return false
	default: // EvalAND is the default combinator
		for _, c := range e.Children {
			if !c.Evaluate(ctx, r) {
				return false
			}
		}
		return true
	}
}

// ContainsDevice reports whether any leaf in the tree references d.
func (e StateEvaluator) ContainsDevice(d valuetype.DeviceID) bool {
	if e.IsLeaf() {
		return e.Leaf.DeviceID == d
	}
	for _, c := range e.Children {
		if c.ContainsDevice(d) {
			return true
		}
	}
	return false
}

// RemoveDevice prunes every leaf referencing d, dropping operator nodes
// that become empty as a result. ok is false if the whole tree vanished.
func (e StateEvaluator) RemoveDevice(d valuetype.DeviceID) (result StateEvaluator, ok bool) {
	if e.IsLeaf() {
		if e.Leaf.DeviceID == d {
			return StateEvaluator{}, false
		}
		return e, true
	}

	kept := make([]StateEvaluator, 0, len(e.Children))
	for _, c := range e.Children {
		if pruned, stillThere := c.RemoveDevice(d); stillThere {
			kept = append(kept, pruned)
		}
	}
	if len(kept) == 0 {
		return StateEvaluator{}, false
	}
	return StateEvaluator{Operator: e.Operator, Children: kept}, true
}

// Validate checks the structural invariants from §3: a non-leaf must
// have at least one child, and every leaf's state type must exist.
func (e StateEvaluator) Validate(ctx context.Context, r DeviceStateReader) error {
	if e.IsLeaf() {
		if !r.StateTypeExists(ctx, e.Leaf.StateTypeID) {
			return valuetype.NewError(valuetype.InvalidStateEvaluatorValue, "leaf references unknown state type")
		}
		return nil
	}
	if len(e.Children) == 0 {
		return valuetype.NewError(valuetype.InvalidStateEvaluatorValue, "non-leaf evaluator has no children")
	}
	for _, c := range e.Children {
		if err := c.Validate(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// Leaves returns every StateDescriptor leaf in the tree, depth-first.
func (e StateEvaluator) Leaves() []valuetype.StateDescriptor {
	if e.IsLeaf() {
		return []valuetype.StateDescriptor{*e.Leaf}
	}
	var out []valuetype.StateDescriptor
	for _, c := range e.Children {
		out = append(out, c.Leaves()...)
	}
	return out
}

// ReferencesStateType reports whether any leaf names the given state
// type. The engine does not call it: EvaluateEvent decides whether to
// recompute statesActive with ContainsDevice.
func (e StateEvaluator) ReferencesStateType(st valuetype.StateTypeID) bool {
	for _, l := range e.Leaves() {
		if l.StateTypeID == st {
			return true
		}
	}
	return false
}
