package namespaces

import (
	"context"
	"encoding/json"

	rulesapp "github.com/felixgeelhaar/meridian/internal/rules/application"
	"github.com/felixgeelhaar/meridian/internal/rules/domain"
	"github.com/felixgeelhaar/meridian/internal/rules/infrastructure/persistence"
	"github.com/felixgeelhaar/meridian/internal/rpc"
	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// RulesNotifier adapts *rpc.Core into rulesapp.Notifier, broadcasting
// rule lifecycle signals to every notification-enabled client.
type RulesNotifier struct {
	core *rpc.Core
}

// NewRulesNotifier wires core for rule lifecycle notification delivery.
func NewRulesNotifier(core *rpc.Core) *RulesNotifier { return &RulesNotifier{core: core} }

func ruleWire(r domain.Rule) map[string]any {
	data, err := persistence.MarshalRule(r)
	if err != nil {
		return map[string]any{"ruleId": r.ID.String()}
	}
	var v map[string]any
	_ = json.Unmarshal(data, &v)
	return v
}

func (n *RulesNotifier) RuleAdded(ctx context.Context, r domain.Rule) {
	n.core.Notify("Rules.RuleAdded", ruleWire(r), "")
}

func (n *RulesNotifier) RuleRemoved(ctx context.Context, id valuetype.RuleID) {
	n.core.Notify("Rules.RuleRemoved", map[string]any{"ruleId": id.String()}, "")
}

func (n *RulesNotifier) RuleConfigurationChanged(ctx context.Context, r domain.Rule) {
	n.core.Notify("Rules.RuleConfigurationChanged", ruleWire(r), "")
}

func (n *RulesNotifier) RuleActiveChanged(ctx context.Context, r domain.Rule) {
	n.core.Notify("Rules.RuleActiveChanged", map[string]any{
		"ruleId": r.ID.String(), "active": r.Active,
	}, "")
}

// NewRulesNamespace builds the Rules namespace: GetRules,
// GetRuleDetails, AddRule, EditRule, RemoveRule, EnableRule,
// DisableRule, ExecuteActions, ExecuteExitActions, and the supplemented
// GetAuditLog method.
func NewRulesNamespace(engine *rulesapp.RuleEngine) (*rpc.Namespace, error) {
	ns := rpc.NewNamespace("Rules")
	ns.Notifications = []string{"RuleAdded", "RuleRemoved", "RuleConfigurationChanged", "RuleActiveChanged"}

	ruleIDParam := objectSchema(map[string]any{"ruleId": stringType()}, "ruleId")

	methods := []*rpc.Method{
		{
			Name: "GetRules",
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				rules := engine.GetRules()
				out := make([]map[string]any, 0, len(rules))
				for _, r := range rules {
					out = append(out, ruleWire(r))
				}
				return map[string]any{"rules": out}, nil
			},
		},
		{
			Name:        "GetRuleDetails",
			ParamSchema: ruleIDParam,
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				id, err := decodeRuleID(call)
				if err != nil {
					return nil, err
				}
				r, ok := engine.GetRuleDetails(id)
				if !ok {
					return nil, valuetype.NewError(valuetype.NotFound, "no such rule")
				}
				return ruleWire(r), nil
			},
		},
		{
			Name:        "AddRule",
			ParamSchema: objectSchema(map[string]any{"rule": map[string]any{"type": "object"}}, "rule"),
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				var p struct {
					Rule map[string]any `json:"rule"`
				}
				if err := call.Decode(&p); err != nil {
					return nil, err
				}
				raw, err := json.Marshal(p.Rule)
				if err != nil {
					return nil, err
				}
				r, err := persistence.UnmarshalRule(raw)
				if err != nil {
					return nil, valuetype.NewError(valuetype.InvalidRuleFormat, err.Error())
				}
				if r.ID.Zero() {
					r.ID = valuetype.NewRuleID()
				}
				if err := engine.AddRule(ctx, r, false); err != nil {
					return map[string]any{"ruleError": valuetype.KindOf(err), "ruleId": r.ID.String()}, nil
				}
				return map[string]any{"ruleError": valuetype.NoError, "ruleId": r.ID.String()}, nil
			},
		},
		{
			Name:        "EditRule",
			ParamSchema: objectSchema(map[string]any{"rule": map[string]any{"type": "object"}}, "rule"),
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				var p struct {
					Rule map[string]any `json:"rule"`
				}
				if err := call.Decode(&p); err != nil {
					return nil, err
				}
				raw, err := json.Marshal(p.Rule)
				if err != nil {
					return nil, err
				}
				r, err := persistence.UnmarshalRule(raw)
				if err != nil {
					return nil, valuetype.NewError(valuetype.InvalidRuleFormat, err.Error())
				}
				if err := engine.EditRule(ctx, r); err != nil {
					return nil, err
				}
				return map[string]any{}, nil
			},
		},
		{
			Name:        "RemoveRule",
			ParamSchema: ruleIDParam,
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				id, err := decodeRuleID(call)
				if err != nil {
					return nil, err
				}
				if err := engine.RemoveRule(ctx, id, false); err != nil {
					return nil, err
				}
				return map[string]any{}, nil
			},
		},
		{
			Name:        "EnableRule",
			ParamSchema: ruleIDParam,
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				id, err := decodeRuleID(call)
				if err != nil {
					return nil, err
				}
				return map[string]any{}, engine.EnableRule(ctx, id)
			},
		},
		{
			Name:        "DisableRule",
			ParamSchema: ruleIDParam,
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				id, err := decodeRuleID(call)
				if err != nil {
					return nil, err
				}
				return map[string]any{}, engine.DisableRule(ctx, id)
			},
		},
		{
			Name:        "ExecuteActions",
			ParamSchema: ruleIDParam,
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				id, err := decodeRuleID(call)
				if err != nil {
					return nil, err
				}
				if err := engine.ExecuteActions(ctx, id); err != nil {
					return nil, err
				}
				return map[string]any{}, nil
			},
		},
		{
			Name:        "ExecuteExitActions",
			ParamSchema: ruleIDParam,
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				id, err := decodeRuleID(call)
				if err != nil {
					return nil, err
				}
				if err := engine.ExecuteExitActions(ctx, id); err != nil {
					return nil, err
				}
				return map[string]any{}, nil
			},
		},
		{
			// Supplemented feature: see SPEC_FULL.md §9.
			Name: "GetAuditLog",
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				entries := engine.AuditLog()
				out := make([]map[string]any, 0, len(entries))
				for _, e := range entries {
					out = append(out, map[string]any{
						"at":     e.At.Unix(),
						"ruleId": e.RuleID.String(),
						"kind":   e.Kind,
						"detail": e.Detail,
					})
				}
				return map[string]any{"entries": out}, nil
			},
		},
	}

	for _, m := range methods {
		if err := ns.AddMethod(m); err != nil {
			return nil, err
		}
	}
	return ns, nil
}

func decodeRuleID(call rpc.Call) (valuetype.RuleID, error) {
	var p struct {
		RuleID string `json:"ruleId"`
	}
	if err := call.Decode(&p); err != nil {
		return valuetype.RuleID{}, err
	}
	return valuetype.ParseRuleID(p.RuleID)
}
