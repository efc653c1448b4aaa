// Package application implements the RuleEngine: rule CRUD with
// consistency validation, state/time/event evaluation, and action
// dispatch, run single-threaded per §5's concurrency model (the engine
// itself holds no mutex — callers are expected to serialize access
// through the core work queue in internal/core).
package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/meridian/internal/devices"
	"github.com/felixgeelhaar/meridian/internal/rules/domain"
	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// Notifier publishes the RPC-visible rule lifecycle signals (§4.H /
// namespaces.Rules): ruleAdded, ruleRemoved, ruleConfigurationChanged,
// ruleActiveChanged.
type Notifier interface {
	RuleAdded(ctx context.Context, r domain.Rule)
	RuleRemoved(ctx context.Context, id valuetype.RuleID)
	RuleConfigurationChanged(ctx context.Context, r domain.Rule)
	RuleActiveChanged(ctx context.Context, r domain.Rule)
}

// AuditEntry is one line of the supplemented audit log (SPEC_FULL.md's
// Rules.GetAuditLog addition): a timestamped record of a rule being
// added, removed, enabled or disabled, or of a manual ExecuteActions /
// ExecuteExitActions call. Firings from EvaluateEvent and EvaluateTime
// are not recorded.
type AuditEntry struct {
	At      time.Time
	RuleID  valuetype.RuleID
	Kind    string // "added" | "removed" | "enabled" | "disabled" | "fired" | "exit-fired"
	Detail  string
}

// auditRing is a fixed-capacity ring buffer; the audit log is a
// diagnostic aid, not a compliance ledger, so it bounds memory rather
// than growing without limit.
type auditRing struct {
	entries []AuditEntry
	cap     int
	next    int
	full    bool
}

func newAuditRing(capacity int) *auditRing {
	return &auditRing{entries: make([]AuditEntry, capacity), cap: capacity}
}

func (r *auditRing) add(e AuditEntry) {
	r.entries[r.next] = e
	r.next = (r.next + 1) % r.cap
	if r.next == 0 {
		r.full = true
	}
}

func (r *auditRing) list() []AuditEntry {
	if !r.full {
		out := make([]AuditEntry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]AuditEntry, r.cap)
	copy(out, r.entries[r.next:])
	copy(out[r.cap-r.next:], r.entries[:r.next])
	return out
}

// RuleEngine is component F: rule CRUD, consistency validation, and the
// state/time/event evaluation algorithms from §4.F.
type RuleEngine struct {
	repo     domain.RuleRepository
	registry devices.Registry
	dispatch *ActionDispatcher
	notifier Notifier
	logger   *slog.Logger

	// index preserves insertion order for tie-breaking, per §4.F "rules
	// are returned in insertion order of the rule index".
	index []valuetype.RuleID
	rules map[valuetype.RuleID]domain.Rule

	lastEvalTime time.Time
	audit        *auditRing
}

// NewRuleEngine loads every persisted rule from repo and builds the
// in-memory index.
func NewRuleEngine(ctx context.Context, repo domain.RuleRepository, registry devices.Registry, dispatch *ActionDispatcher, notifier Notifier, logger *slog.Logger) (*RuleEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &RuleEngine{
		repo:     repo,
		registry: registry,
		dispatch: dispatch,
		notifier: notifier,
		logger:   logger,
		rules:    make(map[valuetype.RuleID]domain.Rule),
		audit:    newAuditRing(256),
	}
	all, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range all {
		e.index = append(e.index, r.ID)
		e.rules[r.ID] = r
	}
	return e, nil
}

// typeRegistry exposes the devices.Registry as a domain.TypeRegistry: its
// method set is a superset by construction (see SPEC_FULL.md's pinned
// DeviceRegistry interface), so the conversion is a plain upcast.
func (e *RuleEngine) typeRegistry() domain.TypeRegistry {
	var tr domain.TypeRegistry = e.registry
	return tr
}

// AddRule validates and persists r. fromEdit suppresses the ruleAdded
// notification (used internally by EditRule).
func (e *RuleEngine) AddRule(ctx context.Context, r domain.Rule, fromEdit bool) error {
	if err := r.Validate(ctx, e.typeRegistry()); err != nil {
		return err
	}
	if _, exists := e.rules[r.ID]; exists {
		return valuetype.NewError(valuetype.DuplicateID, "rule id already exists")
	}

	r.Executable = true
	r.StatesActive = e.computeStatesActive(ctx, r)
	r.TimeActive = r.TimeDescriptor.IsTimeActive(time.Now())
	if !r.EventTriggered() {
		r.Active = r.TimeActive && r.StatesActive
	}

	if err := e.repo.Save(ctx, r); err != nil {
		return valuetype.NewError(valuetype.BackendError, err.Error())
	}

	e.index = append(e.index, r.ID)
	e.rules[r.ID] = r
	e.audit.add(AuditEntry{At: time.Now(), RuleID: r.ID, Kind: "added"})
	if !fromEdit && e.notifier != nil {
		e.notifier.RuleAdded(ctx, r)
	}
	return nil
}

// EditRule atomically replaces an existing rule: remove (without
// emitting ruleRemoved), add the new version; on add failure the old
// rule is restored verbatim and the add's error is returned.
func (e *RuleEngine) EditRule(ctx context.Context, r domain.Rule) error {
	old, ok := e.rules[r.ID]
	if !ok {
		return valuetype.NewError(valuetype.NotFound, "rule not found")
	}

	if err := e.RemoveRule(ctx, r.ID, true); err != nil {
		return err
	}
	if err := e.AddRule(ctx, r, true); err != nil {
		// restore old verbatim; AddRule already rejected r so the index/
		// map/repo are all still in the post-remove state.
		if restoreErr := e.AddRule(ctx, old, true); restoreErr != nil {
			e.logger.Error("edit rule: failed to restore previous version after add failure",
				"rule_id", r.ID.String(), "restore_error", restoreErr)
		}
		return err
	}
	if e.notifier != nil {
		e.notifier.RuleConfigurationChanged(ctx, r)
	}
	return nil
}

// RemoveRule removes a rule from the in-memory index and the persistent
// store. fromEdit suppresses the ruleRemoved notification.
func (e *RuleEngine) RemoveRule(ctx context.Context, id valuetype.RuleID, fromEdit bool) error {
	if _, ok := e.rules[id]; !ok {
		return valuetype.NewError(valuetype.NotFound, "rule not found")
	}
	if err := e.repo.Delete(ctx, id); err != nil {
		return valuetype.NewError(valuetype.BackendError, err.Error())
	}
	delete(e.rules, id)
	for i, rid := range e.index {
		if rid == id {
			e.index = append(e.index[:i], e.index[i+1:]...)
			break
		}
	}
	e.audit.add(AuditEntry{At: time.Now(), RuleID: id, Kind: "removed"})
	if !fromEdit && e.notifier != nil {
		e.notifier.RuleRemoved(ctx, id)
	}
	return nil
}

// EnableRule / DisableRule toggle a rule's enabled flag. Idempotent.
func (e *RuleEngine) EnableRule(ctx context.Context, id valuetype.RuleID) error {
	return e.setEnabled(ctx, id, true)
}

func (e *RuleEngine) DisableRule(ctx context.Context, id valuetype.RuleID) error {
	return e.setEnabled(ctx, id, false)
}

func (e *RuleEngine) setEnabled(ctx context.Context, id valuetype.RuleID, enabled bool) error {
	r, ok := e.rules[id]
	if !ok {
		return valuetype.NewError(valuetype.NotFound, "rule not found")
	}
	r.Enabled = enabled
	if err := e.repo.Save(ctx, r); err != nil {
		return valuetype.NewError(valuetype.BackendError, err.Error())
	}
	e.rules[id] = r
	kind := "disabled"
	if enabled {
		kind = "enabled"
	}
	e.audit.add(AuditEntry{At: time.Now(), RuleID: id, Kind: kind})
	if e.notifier != nil {
		e.notifier.RuleConfigurationChanged(ctx, r)
	}
	return nil
}

// ExecuteActions / ExecuteExitActions force-fire a rule's action list
// outside of normal evaluation, refusing rules that aren't executable or
// whose actions need a triggering event.
func (e *RuleEngine) ExecuteActions(ctx context.Context, id valuetype.RuleID) error {
	r, ok := e.rules[id]
	if !ok {
		return valuetype.NewError(valuetype.NotFound, "rule not found")
	}
	if err := r.CanExecuteActions(); err != nil {
		return err
	}
	e.fireActions(ctx, r, r.Actions, nil)
	e.audit.add(AuditEntry{At: time.Now(), RuleID: id, Kind: "fired", Detail: "manual ExecuteActions"})
	return nil
}

func (e *RuleEngine) ExecuteExitActions(ctx context.Context, id valuetype.RuleID) error {
	r, ok := e.rules[id]
	if !ok {
		return valuetype.NewError(valuetype.NotFound, "rule not found")
	}
	if err := r.CanExecuteExitActions(); err != nil {
		return err
	}
	e.fireActions(ctx, r, r.ExitActions, nil)
	e.audit.add(AuditEntry{At: time.Now(), RuleID: id, Kind: "exit-fired", Detail: "manual ExecuteExitActions"})
	return nil
}

// AuditLog returns every retained audit entry, oldest first.
func (e *RuleEngine) AuditLog() []AuditEntry { return e.audit.list() }

// GetRules / GetRuleDetails back the read-side RPC methods.
func (e *RuleEngine) GetRules() []domain.Rule {
	out := make([]domain.Rule, 0, len(e.index))
	for _, id := range e.index {
		out = append(out, e.rules[id])
	}
	return out
}

func (e *RuleEngine) GetRuleDetails(id valuetype.RuleID) (domain.Rule, bool) {
	r, ok := e.rules[id]
	return r, ok
}

func (e *RuleEngine) notifyActiveChanged(ctx context.Context, r domain.Rule) {
	if e.notifier != nil {
		e.notifier.RuleActiveChanged(ctx, r)
	}
}

func (e *RuleEngine) computeStatesActive(ctx context.Context, r domain.Rule) bool {
	if !r.HasStateEvaluator {
		return true
	}
	return r.StateEvaluator.Evaluate(ctx, e.registry)
}

func (e *RuleEngine) fireActions(ctx context.Context, r domain.Rule, actions []domain.RuleAction, event *domain.Event) {
	for _, a := range actions {
		resolved := a
		if a.EventBased() {
			if event == nil {
				continue
			}
			var ok bool
			resolved, ok = a.ResolveBindings(*event)
			if !ok {
				e.logger.Warn("action binding unresolved, skipping",
					"rule_id", r.ID.String(), "action_type", a.ActionTypeID.String())
				continue
			}
		}
		req := devices.ActionRequest{
			ActionTypeID: resolved.ActionTypeID,
			DeviceID:     resolved.DeviceID,
			Params:       make(map[valuetype.ParamTypeID]valuetype.TypedValue, len(resolved.Params)),
		}
		for _, p := range resolved.Params {
			req.Params[p.ParamTypeID] = p.Value
		}
		e.dispatch.Dispatch(ctx, req)
	}
}

// EvaluateEvent implements §4.F's event evaluation algorithm: walk every
// enabled rule in insertion order, recompute statesActive where the
// rule's state evaluator references the event's device (an Event carries
// no state type, so the state type is not checked), then branch on
// event-triggered vs. state/time-only.
func (e *RuleEngine) EvaluateEvent(ctx context.Context, event domain.Event) []valuetype.RuleID {
	var fired []valuetype.RuleID
	now := time.Now()

	for _, id := range e.index {
		r := e.rules[id]
		if !r.Enabled {
			continue
		}

		if r.HasStateEvaluator {
			// Any event can change device state as a side effect; the
			// engine only knows which state type this event concerns if
			// the caller also publishes a state-changed signal. Here we
			// conservatively recompute whenever the event comes from a
			// device the evaluator references, whatever its type.
			if r.StateEvaluator.ContainsDevice(event.DeviceID) {
				r.StatesActive = r.StateEvaluator.Evaluate(ctx, e.registry)
			}
		}
		r.TimeActive = r.TimeDescriptor.IsTimeActive(now)

		if !r.EventTriggered() {
			shouldBeActive := r.TimeActive && r.StatesActive
			switch {
			case shouldBeActive && !r.Active:
				r.Active = true
				e.fireActions(ctx, r, r.Actions, &event)
				fired = append(fired, id)
				e.notifyActiveChanged(ctx, r)
			case !shouldBeActive && r.Active:
				r.Active = false
				e.fireActions(ctx, r, r.ExitActions, &event)
				fired = append(fired, id)
				e.notifyActiveChanged(ctx, r)
			}
			e.rules[id] = r
			continue
		}

		// Event-triggered rule: fire once per matching descriptor, gated
		// by current state/time activity; no activity state is tracked.
		matched := false
		for _, ed := range r.EventDescriptors {
			if ed.Matches(event) {
				matched = true
				break
			}
		}
		if matched && r.StatesActive && r.TimeActive {
			e.fireActions(ctx, r, r.Actions, &event)
			fired = append(fired, id)
		}
		e.rules[id] = r
	}
	return fired
}

// EvaluateTime implements §4.F's time evaluation algorithm, driven by a
// periodic tick (see internal/core's robfig/cron wiring).
func (e *RuleEngine) EvaluateTime(ctx context.Context, now time.Time) []valuetype.RuleID {
	if e.lastEvalTime.IsZero() {
		e.lastEvalTime = now.Add(-time.Second)
	}
	var fired []valuetype.RuleID

	for _, id := range e.index {
		r := e.rules[id]
		if !r.Enabled || r.TimeDescriptor.Empty() {
			continue
		}

		if len(r.TimeDescriptor.CalendarItems) > 0 {
			r.TimeActive = r.TimeDescriptor.IsTimeActive(now)
		}

		if len(r.TimeDescriptor.TimeEventItems) == 0 {
			shouldBeActive := r.TimeActive && r.StatesActive
			switch {
			case shouldBeActive && !r.Active:
				r.Active = true
				e.fireActions(ctx, r, r.Actions, nil)
				fired = append(fired, id)
				e.notifyActiveChanged(ctx, r)
			case !shouldBeActive && r.Active:
				r.Active = false
				e.fireActions(ctx, r, r.ExitActions, nil)
				fired = append(fired, id)
				e.notifyActiveChanged(ctx, r)
			}
			e.rules[id] = r
			continue
		}

		if r.TimeDescriptor.AnyTimeEventFired(e.lastEvalTime, now) && r.StatesActive && r.TimeActive {
			e.fireActions(ctx, r, r.Actions, nil)
			fired = append(fired, id)
		}
		e.rules[id] = r
	}

	e.lastEvalTime = now
	return fired
}
