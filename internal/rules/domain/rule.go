package domain

import (
	"context"

	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// TypeRegistry is the part of the DeviceRegistry the Rule invariants
// need: existence checks for devices and the various type catalogs, and
// the declared ValueKind of a param or event-param (needed for the
// event-bound action TypesNotMatching check).
type TypeRegistry interface {
	DeviceStateReader
	DeviceExists(ctx context.Context, device valuetype.DeviceID) bool
	EventTypeExists(ctx context.Context, eventType valuetype.EventTypeID) bool
	ActionTypeExists(ctx context.Context, actionType valuetype.ActionTypeID) bool
	ParamKind(ctx context.Context, paramType valuetype.ParamTypeID) (valuetype.Kind, bool)
	EventParamKind(ctx context.Context, eventType valuetype.EventTypeID, paramType valuetype.ParamTypeID) (valuetype.Kind, bool)
}

// Rule is the central domain entity: a triple of triggers (EventDescriptors
// and/or TimeDescriptor), gates (StateEvaluator), and effects (Actions /
// ExitActions).
type Rule struct {
	ID       valuetype.RuleID
	Name     string
	Enabled  bool
	Executable bool

	TimeDescriptor  TimeDescriptor
	StateEvaluator  StateEvaluator
	HasStateEvaluator bool
	EventDescriptors []EventDescriptor

	Actions     []RuleAction
	ExitActions []RuleAction

	// Derived runtime fields, recomputed by the engine; persisted so a
	// restart doesn't momentarily misreport an active rule's state.
	StatesActive bool
	TimeActive   bool
	Active       bool
}

// EventTriggered reports whether the rule fires off events rather than
// being a pure state/time rule.
func (r Rule) EventTriggered() bool { return len(r.EventDescriptors) > 0 }

func (r Rule) hasTimeEventItems() bool { return len(r.TimeDescriptor.TimeEventItems) > 0 }

// Validate checks every invariant from §3. tr must reflect the registry
// state at validation time (add/edit).
func (r Rule) Validate(ctx context.Context, tr TypeRegistry) error {
	if r.ID.Zero() {
		return valuetype.NewError(valuetype.InvalidRuleFormat, "id is required")
	}
	if len(r.Actions) == 0 {
		return valuetype.NewError(valuetype.InvalidRuleFormat, "actions must be non-empty")
	}
	if (r.EventTriggered() || r.hasTimeEventItems()) && len(r.ExitActions) > 0 {
		return valuetype.NewError(valuetype.InvalidRuleFormat, "exitActions are unreachable on an event- or time-event-triggered rule")
	}

	for _, ed := range r.EventDescriptors {
		if ed.deviceBound() {
			if !tr.EventTypeExists(ctx, ed.EventTypeID) {
				return valuetype.NewError(valuetype.NotFound, "unknown event type in eventDescriptors")
			}
			if !tr.DeviceExists(ctx, ed.DeviceID) {
				return valuetype.NewError(valuetype.NotFound, "unknown device in eventDescriptors")
			}
		}
	}

	allActions := append(append([]RuleAction{}, r.Actions...), r.ExitActions...)
	for i, a := range allActions {
		isExit := i >= len(r.Actions)
		if isExit && a.EventBased() {
			return valuetype.NewError(valuetype.ContainsEventBasedAction, "exitAction may not be event-based")
		}
		if !tr.ActionTypeExists(ctx, a.ActionTypeID) {
			return valuetype.NewError(valuetype.NotFound, "unknown action type")
		}
		if !tr.DeviceExists(ctx, a.DeviceID) {
			return valuetype.NewError(valuetype.NotFound, "unknown device in actions")
		}
		for _, p := range a.Params {
			if !p.IsBinding {
				continue
			}
			if !r.eventDescribed(p.EventTypeID) {
				return valuetype.NewError(valuetype.InvalidRuleFormat, "event-based action references an eventTypeId not in eventDescriptors")
			}
			paramKind, ok := tr.ParamKind(ctx, p.ParamTypeID)
			if !ok {
				return valuetype.NewError(valuetype.NotFound, "unknown action param type")
			}
			eventParamKind, ok := tr.EventParamKind(ctx, p.EventTypeID, p.EventParamTypeID)
			if !ok {
				return valuetype.NewError(valuetype.NotFound, "unknown source event param type")
			}
			if paramKind != eventParamKind {
				return valuetype.NewError(valuetype.TypesNotMatching, "event-bound action param type disagrees with source event param")
			}
		}
	}

	if r.HasStateEvaluator {
		if err := r.StateEvaluator.Validate(ctx, tr); err != nil {
			return err
		}
	}
	if err := r.TimeDescriptor.Validate(); err != nil {
		return err
	}
	return nil
}

func (r Rule) eventDescribed(et valuetype.EventTypeID) bool {
	for _, ed := range r.EventDescriptors {
		if ed.deviceBound() && ed.EventTypeID == et {
			return true
		}
	}
	return false
}

// CanExecuteActions checks the §4.F ExecuteActions precondition.
func (r Rule) CanExecuteActions() error {
	if !r.Executable {
		return valuetype.NewError(valuetype.NotExecutable, "rule is not executable")
	}
	for _, a := range r.Actions {
		if a.EventBased() {
			return valuetype.NewError(valuetype.ContainsEventBasedAction, "no triggering event available")
		}
	}
	return nil
}

// CanExecuteExitActions checks the §4.F ExecuteExitActions precondition.
func (r Rule) CanExecuteExitActions() error {
	if !r.Executable {
		return valuetype.NewError(valuetype.NotExecutable, "rule is not executable")
	}
	if len(r.ExitActions) == 0 {
		return valuetype.NewError(valuetype.NoExitActions, "rule has no exit actions")
	}
	for _, a := range r.ExitActions {
		if a.EventBased() {
			return valuetype.NewError(valuetype.ContainsEventBasedAction, "no triggering event available")
		}
	}
	return nil
}
