package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ClientID identifies a connected client across the multiplexer and the
// core's per-client auth/notification state.
type ClientID string

// Call carries everything a Method needs to run. Username is populated
// by the core's authentication gate whenever the call carries (or the
// connection already holds) a verified identity; it is empty for exempt
// calls made before any account exists.
type Call struct {
	Client   ClientID
	Params   json.RawMessage
	Token    string
	Username string
}

// Decode unmarshals the call's raw params into v.
func (c Call) Decode(v any) error {
	if len(c.Params) == 0 {
		return nil
	}
	return json.Unmarshal(c.Params, v)
}

// HandlerFunc implements one RPC method. It returns either an immediate
// result (marshalable to the method's return schema) or an *AsyncReply
// for the core to wait on (§4.H step 6).
type HandlerFunc func(ctx context.Context, call Call) (any, error)

// Method is one namespace method's full declaration: its schemas (used
// both for request-time validation and for the Introspect document) and
// implementation.
type Method struct {
	Name         string
	ParamSchema  map[string]any
	ReturnSchema map[string]any
	Handler      HandlerFunc

	compiledParams *jsonschema.Schema
}

// compile compiles m's param schema once at registration time. A nil or
// empty ParamSchema means "no params to validate" (e.g. Hello).
func (m *Method) compile(qualifiedName string) error {
	if len(m.ParamSchema) == 0 {
		return nil
	}
	c := jsonschema.NewCompiler()
	resource := qualifiedName + "#params"
	if err := c.AddResource(resource, toAny(m.ParamSchema)); err != nil {
		return fmt.Errorf("add schema resource for %s: %w", qualifiedName, err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return fmt.Errorf("compile param schema for %s: %w", qualifiedName, err)
	}
	m.compiledParams = schema
	return nil
}

// validate checks raw params against the compiled schema, if any.
func (m *Method) validate(raw json.RawMessage) error {
	if m.compiledParams == nil {
		return nil
	}
	var doc any
	if len(raw) == 0 {
		doc = map[string]any{}
	} else if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return m.compiledParams.Validate(doc)
}

func toAny(m map[string]any) any { return map[string]any(m) }

// Namespace groups related methods and the notifications it may emit
// (used only for the Introspect document — notifications are delivered
// via Core.Notify, not dispatched through Namespace).
type Namespace struct {
	Name          string
	Methods       map[string]*Method
	Notifications []string
}

// NewNamespace returns an empty namespace ready for AddMethod calls.
func NewNamespace(name string) *Namespace {
	return &Namespace{Name: name, Methods: map[string]*Method{}}
}

// AddMethod registers m under its own Name, compiling its schema.
func (n *Namespace) AddMethod(m *Method) error {
	if err := m.compile(n.Name + "." + m.Name); err != nil {
		return err
	}
	n.Methods[m.Name] = m
	return nil
}
