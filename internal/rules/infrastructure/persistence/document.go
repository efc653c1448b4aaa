package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/meridian/internal/rules/domain"
	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// MarshalRule renders r in the same JSON shape used for file storage,
// reused as-is for the Rules RPC namespace's wire format (§6 defines one
// field-name scheme, not a separate wire vs. storage shape).
func MarshalRule(r domain.Rule) ([]byte, error) {
	return json.Marshal(fromDomain(r))
}

// UnmarshalRule parses a rule from the shape MarshalRule produces.
func UnmarshalRule(data []byte) (domain.Rule, error) {
	var doc ruleDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.Rule{}, err
	}
	return doc.toDomain()
}

func unixToTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

// The structs below mirror §6's "Persistent layout" path scheme as plain
// JSON object nesting: one group per rule keyed by ruleId (the filename),
// with timeDescriptor/events/stateEvaluator/ruleActions/ruleExitActions
// sub-objects matching the named sub-paths. Field names are exactly the
// ones §6 lists so the logical addressing survives even though the
// storage engine is a JSON file rather than a literal keyed store.

type ruleDocument struct {
	Name             string               `json:"name"`
	Enabled          bool                 `json:"enabled"`
	Executable       bool                 `json:"executable"`
	StatesActive     bool                 `json:"statesActive"`
	TimeActive       bool                 `json:"timeActive"`
	Active           bool                 `json:"active"`
	TimeDescriptor   timeDescriptorDoc    `json:"timeDescriptor"`
	Events           []eventDescriptorDoc `json:"events,omitempty"`
	StateEvaluator   *stateEvaluatorDoc   `json:"stateEvaluator,omitempty"`
	RuleActions      []ruleActionDoc      `json:"ruleActions"`
	RuleExitActions  []ruleActionDoc      `json:"ruleExitActions,omitempty"`

	// id is carried in the filename, not the document body, but is kept
	// here too so a document copied/inspected out of context is still
	// self-describing.
	RuleID string `json:"ruleId"`
}

type repeatingOptionDoc struct {
	Mode      string `json:"mode"`
	WeekDays  []int  `json:"weekDays,omitempty"`
	MonthDays []int  `json:"monthDays,omitempty"`
}

type calendarItemDoc struct {
	DateTime  *int64             `json:"dateTime,omitempty"`  // epoch seconds, UTC
	StartTime *string            `json:"startTime,omitempty"` // "HH:mm"
	Duration  int                `json:"duration"`
	Repeat    repeatingOptionDoc `json:"repeat"`
}

type timeEventItemDoc struct {
	DateTime *int64             `json:"dateTime,omitempty"`
	Time     *string            `json:"time,omitempty"`
	Repeat   repeatingOptionDoc `json:"repeat"`
}

type timeDescriptorDoc struct {
	CalendarItems  []calendarItemDoc  `json:"calendarItems,omitempty"`
	TimeEventItems []timeEventItemDoc `json:"timeEventItems,omitempty"`
}

type paramDescriptorDoc struct {
	ParamTypeID string             `json:"paramTypeId"`
	Operator    string             `json:"operator"`
	Value       valuetype.TypedValue `json:"value"`
}

type eventDescriptorDoc struct {
	DeviceID    string               `json:"deviceId,omitempty"`
	EventTypeID string               `json:"eventTypeId,omitempty"`
	Interface   string               `json:"interface,omitempty"`
	EventName   string               `json:"eventName,omitempty"`
	Params      []paramDescriptorDoc `json:"params,omitempty"`
}

type stateDescriptorDoc struct {
	DeviceID    string               `json:"deviceId"`
	StateTypeID string               `json:"stateTypeId"`
	Operator    string               `json:"operator"`
	Value       valuetype.TypedValue `json:"value"`
}

type stateEvaluatorDoc struct {
	Leaf     *stateDescriptorDoc `json:"leaf,omitempty"`
	Operator string              `json:"operator,omitempty"`
	Children []stateEvaluatorDoc `json:"children,omitempty"`
}

type ruleActionParamDoc struct {
	ParamTypeID      string                `json:"paramTypeId"`
	Value            *valuetype.TypedValue `json:"value,omitempty"`
	EventTypeID      string                `json:"eventTypeId,omitempty"`
	EventParamTypeID string                `json:"eventParamTypeId,omitempty"`
}

type ruleActionDoc struct {
	DeviceID     string               `json:"deviceId"`
	ActionTypeID string               `json:"actionTypeId"`
	Params       []ruleActionParamDoc `json:"params,omitempty"`
}

func fromDomain(r domain.Rule) ruleDocument {
	doc := ruleDocument{
		RuleID:       r.ID.String(),
		Name:         r.Name,
		Enabled:      r.Enabled,
		Executable:   r.Executable,
		StatesActive: r.StatesActive,
		TimeActive:   r.TimeActive,
		Active:       r.Active,
		TimeDescriptor: timeDescriptorDoc{
			CalendarItems:  make([]calendarItemDoc, len(r.TimeDescriptor.CalendarItems)),
			TimeEventItems: make([]timeEventItemDoc, len(r.TimeDescriptor.TimeEventItems)),
		},
		RuleActions:     make([]ruleActionDoc, len(r.Actions)),
		RuleExitActions: make([]ruleActionDoc, len(r.ExitActions)),
	}

	for i, c := range r.TimeDescriptor.CalendarItems {
		doc.TimeDescriptor.CalendarItems[i] = calendarItemFromDomain(c)
	}
	for i, t := range r.TimeDescriptor.TimeEventItems {
		doc.TimeDescriptor.TimeEventItems[i] = timeEventItemFromDomain(t)
	}
	for _, ed := range r.EventDescriptors {
		doc.Events = append(doc.Events, eventDescriptorFromDomain(ed))
	}
	if r.HasStateEvaluator {
		d := stateEvaluatorFromDomain(r.StateEvaluator)
		doc.StateEvaluator = &d
	}
	for i, a := range r.Actions {
		doc.RuleActions[i] = ruleActionFromDomain(a)
	}
	for i, a := range r.ExitActions {
		doc.RuleExitActions[i] = ruleActionFromDomain(a)
	}
	return doc
}

func (doc ruleDocument) toDomain() (domain.Rule, error) {
	id, err := valuetype.ParseRuleID(doc.RuleID)
	if err != nil {
		return domain.Rule{}, fmt.Errorf("ruleId: %w", err)
	}
	r := domain.Rule{
		ID:           id,
		Name:         doc.Name,
		Enabled:      doc.Enabled,
		Executable:   doc.Executable,
		StatesActive: doc.StatesActive,
		TimeActive:   doc.TimeActive,
		Active:       doc.Active,
	}

	for _, c := range doc.TimeDescriptor.CalendarItems {
		item, err := c.toDomain()
		if err != nil {
			return domain.Rule{}, err
		}
		r.TimeDescriptor.CalendarItems = append(r.TimeDescriptor.CalendarItems, item)
	}
	for _, t := range doc.TimeDescriptor.TimeEventItems {
		item, err := t.toDomain()
		if err != nil {
			return domain.Rule{}, err
		}
		r.TimeDescriptor.TimeEventItems = append(r.TimeDescriptor.TimeEventItems, item)
	}
	for _, ed := range doc.Events {
		d, err := ed.toDomain()
		if err != nil {
			return domain.Rule{}, err
		}
		r.EventDescriptors = append(r.EventDescriptors, d)
	}
	if doc.StateEvaluator != nil {
		eval, err := doc.StateEvaluator.toDomain()
		if err != nil {
			return domain.Rule{}, err
		}
		r.StateEvaluator = eval
		r.HasStateEvaluator = true
	}
	for _, a := range doc.RuleActions {
		action, err := a.toDomain()
		if err != nil {
			return domain.Rule{}, err
		}
		r.Actions = append(r.Actions, action)
	}
	for _, a := range doc.RuleExitActions {
		action, err := a.toDomain()
		if err != nil {
			return domain.Rule{}, err
		}
		r.ExitActions = append(r.ExitActions, action)
	}
	return r, nil
}

func repeatingOptionFromDomain(r domain.RepeatingOption) repeatingOptionDoc {
	return repeatingOptionDoc{Mode: string(r.Mode), WeekDays: r.WeekDays, MonthDays: r.MonthDays}
}

func (d repeatingOptionDoc) toDomain() domain.RepeatingOption {
	return domain.RepeatingOption{Mode: domain.RepeatMode(d.Mode), WeekDays: d.WeekDays, MonthDays: d.MonthDays}
}

func clockTimeString(c domain.ClockTime) string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func parseClockTime(s string) (domain.ClockTime, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return domain.ClockTime{}, fmt.Errorf("clock time %q: %w", s, err)
	}
	return domain.ClockTime{Hour: h, Minute: m}, nil
}

func calendarItemFromDomain(c domain.CalendarItem) calendarItemDoc {
	doc := calendarItemDoc{Duration: c.Duration, Repeat: repeatingOptionFromDomain(c.Repeat)}
	if c.DateTime != nil {
		sec := c.DateTime.Unix()
		doc.DateTime = &sec
	}
	if c.StartTime != nil {
		s := clockTimeString(*c.StartTime)
		doc.StartTime = &s
	}
	return doc
}

func (d calendarItemDoc) toDomain() (domain.CalendarItem, error) {
	item := domain.CalendarItem{Duration: d.Duration, Repeat: d.Repeat.toDomain()}
	if d.DateTime != nil {
		t := unixToTime(*d.DateTime)
		item.DateTime = &t
	}
	if d.StartTime != nil {
		ct, err := parseClockTime(*d.StartTime)
		if err != nil {
			return domain.CalendarItem{}, err
		}
		item.StartTime = &ct
	}
	return item, nil
}

func timeEventItemFromDomain(t domain.TimeEventItem) timeEventItemDoc {
	doc := timeEventItemDoc{Repeat: repeatingOptionFromDomain(t.Repeat)}
	if t.DateTime != nil {
		sec := t.DateTime.Unix()
		doc.DateTime = &sec
	}
	if t.Time != nil {
		s := clockTimeString(*t.Time)
		doc.Time = &s
	}
	return doc
}

func (d timeEventItemDoc) toDomain() (domain.TimeEventItem, error) {
	item := domain.TimeEventItem{Repeat: d.Repeat.toDomain()}
	if d.DateTime != nil {
		t := unixToTime(*d.DateTime)
		item.DateTime = &t
	}
	if d.Time != nil {
		ct, err := parseClockTime(*d.Time)
		if err != nil {
			return domain.TimeEventItem{}, err
		}
		item.Time = &ct
	}
	return item, nil
}

func paramDescriptorFromDomain(p valuetype.ParamDescriptor) paramDescriptorDoc {
	return paramDescriptorDoc{ParamTypeID: p.ParamTypeID.String(), Operator: string(p.Operator), Value: p.Value}
}

func (d paramDescriptorDoc) toDomain() (valuetype.ParamDescriptor, error) {
	pid, err := valuetype.ParseParamTypeID(d.ParamTypeID)
	if err != nil {
		return valuetype.ParamDescriptor{}, err
	}
	return valuetype.ParamDescriptor{ParamTypeID: pid, Operator: valuetype.Operator(d.Operator), Value: d.Value}, nil
}

func eventDescriptorFromDomain(e domain.EventDescriptor) eventDescriptorDoc {
	doc := eventDescriptorDoc{Interface: e.Interface, EventName: e.EventName}
	if e.Interface == "" {
		doc.DeviceID = e.DeviceID.String()
		doc.EventTypeID = e.EventTypeID.String()
	}
	for _, p := range e.Params {
		doc.Params = append(doc.Params, paramDescriptorFromDomain(p))
	}
	return doc
}

func (d eventDescriptorDoc) toDomain() (domain.EventDescriptor, error) {
	ed := domain.EventDescriptor{Interface: d.Interface, EventName: d.EventName}
	if d.Interface == "" {
		device, err := valuetype.ParseDeviceID(d.DeviceID)
		if err != nil {
			return domain.EventDescriptor{}, err
		}
		eventType, err := valuetype.ParseEventTypeID(d.EventTypeID)
		if err != nil {
			return domain.EventDescriptor{}, err
		}
		ed.DeviceID, ed.EventTypeID = device, eventType
	}
	for _, p := range d.Params {
		pd, err := p.toDomain()
		if err != nil {
			return domain.EventDescriptor{}, err
		}
		ed.Params = append(ed.Params, pd)
	}
	return ed, nil
}

func stateEvaluatorFromDomain(e domain.StateEvaluator) stateEvaluatorDoc {
	if e.IsLeaf() {
		return stateEvaluatorDoc{Leaf: &stateDescriptorDoc{
			DeviceID:    e.Leaf.DeviceID.String(),
			StateTypeID: e.Leaf.StateTypeID.String(),
			Operator:    string(e.Leaf.Operator),
			Value:       e.Leaf.Value,
		}}
	}
	doc := stateEvaluatorDoc{Operator: string(e.Operator)}
	for _, c := range e.Children {
		doc.Children = append(doc.Children, stateEvaluatorFromDomain(c))
	}
	return doc
}

func (d stateEvaluatorDoc) toDomain() (domain.StateEvaluator, error) {
	if d.Leaf != nil {
		device, err := valuetype.ParseDeviceID(d.Leaf.DeviceID)
		if err != nil {
			return domain.StateEvaluator{}, err
		}
		stateType, err := valuetype.ParseStateTypeID(d.Leaf.StateTypeID)
		if err != nil {
			return domain.StateEvaluator{}, err
		}
		leaf := valuetype.StateDescriptor{
			DeviceID:    device,
			StateTypeID: stateType,
			Operator:    valuetype.Operator(d.Leaf.Operator),
			Value:       d.Leaf.Value,
		}
		return domain.StateEvaluator{Leaf: &leaf}, nil
	}
	eval := domain.StateEvaluator{Operator: domain.EvalOperator(d.Operator)}
	for _, c := range d.Children {
		child, err := c.toDomain()
		if err != nil {
			return domain.StateEvaluator{}, err
		}
		eval.Children = append(eval.Children, child)
	}
	return eval, nil
}

func ruleActionParamFromDomain(p domain.RuleActionParam) ruleActionParamDoc {
	doc := ruleActionParamDoc{ParamTypeID: p.ParamTypeID.String()}
	if p.IsBinding {
		doc.EventTypeID = p.EventTypeID.String()
		doc.EventParamTypeID = p.EventParamTypeID.String()
		return doc
	}
	v := p.Value
	doc.Value = &v
	return doc
}

func (d ruleActionParamDoc) toDomain() (domain.RuleActionParam, error) {
	pid, err := valuetype.ParseParamTypeID(d.ParamTypeID)
	if err != nil {
		return domain.RuleActionParam{}, err
	}
	p := domain.RuleActionParam{ParamTypeID: pid}
	if d.Value != nil {
		p.Value = *d.Value
		p.HasLiteral = true
		return p, nil
	}
	eventType, err := valuetype.ParseEventTypeID(d.EventTypeID)
	if err != nil {
		return domain.RuleActionParam{}, err
	}
	eventParamType, err := valuetype.ParseParamTypeID(d.EventParamTypeID)
	if err != nil {
		return domain.RuleActionParam{}, err
	}
	p.EventTypeID = eventType
	p.EventParamTypeID = eventParamType
	p.IsBinding = true
	return p, nil
}

func ruleActionFromDomain(a domain.RuleAction) ruleActionDoc {
	doc := ruleActionDoc{DeviceID: a.DeviceID.String(), ActionTypeID: a.ActionTypeID.String()}
	for _, p := range a.Params {
		doc.Params = append(doc.Params, ruleActionParamFromDomain(p))
	}
	return doc
}

func (d ruleActionDoc) toDomain() (domain.RuleAction, error) {
	device, err := valuetype.ParseDeviceID(d.DeviceID)
	if err != nil {
		return domain.RuleAction{}, err
	}
	actionType, err := valuetype.ParseActionTypeID(d.ActionTypeID)
	if err != nil {
		return domain.RuleAction{}, err
	}
	a := domain.RuleAction{DeviceID: device, ActionTypeID: actionType}
	for _, p := range d.Params {
		param, err := p.toDomain()
		if err != nil {
			return domain.RuleAction{}, err
		}
		a.Params = append(a.Params, param)
	}
	return a, nil
}
