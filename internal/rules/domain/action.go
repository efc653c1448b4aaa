package domain

import "github.com/felixgeelhaar/meridian/internal/valuetype"

// RuleActionParam is either a literal (ParamTypeID, Value) or a binding
// (ParamTypeID, EventTypeID, EventParamTypeID) — "bind at fire time to a
// param of the triggering event". Exactly one of Value or the event
// binding fields is set.
type RuleActionParam struct {
	ParamTypeID valuetype.ParamTypeID

	// Literal form.
	Value         valuetype.TypedValue
	HasLiteral    bool

	// Binding form.
	EventTypeID      valuetype.EventTypeID
	EventParamTypeID valuetype.ParamTypeID
	IsBinding        bool
}

// RuleAction is a typed command directed at a device: an action type, a
// target device, and its parameters.
type RuleAction struct {
	ActionTypeID valuetype.ActionTypeID
	DeviceID     valuetype.DeviceID
	Params       []RuleActionParam
}

// EventBased reports whether any param uses the binding form.
func (a RuleAction) EventBased() bool {
	for _, p := range a.Params {
		if p.IsBinding {
			return true
		}
	}
	return false
}

// ResolveBindings returns a copy of a with every binding param resolved
// against the triggering event's params, turning them into literals.
// ok is false if a referenced event param is missing from the event.
func (a RuleAction) ResolveBindings(event Event) (RuleAction, bool) {
	resolved := RuleAction{ActionTypeID: a.ActionTypeID, DeviceID: a.DeviceID}
	for _, p := range a.Params {
		if !p.IsBinding {
			resolved.Params = append(resolved.Params, p)
			continue
		}
		v, ok := event.Params[p.EventParamTypeID]
		if !ok {
			return RuleAction{}, false
		}
		resolved.Params = append(resolved.Params, RuleActionParam{
			ParamTypeID: p.ParamTypeID,
			Value:       v,
			HasLiteral:  true,
		})
	}
	return resolved, true
}
