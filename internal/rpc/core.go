package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// exempt method sets for §4.H's authentication gate, keyed by whether
// any user account exists yet.
var exemptNoUsers = map[string]bool{
	"Introspect": true, "Hello": true, "CreateUser": true, "RequestPushButtonAuth": true,
}
var exemptWithUsers = map[string]bool{
	"Introspect": true, "Hello": true, "Authenticate": true, "RequestPushButtonAuth": true,
}

// TokenVerifier checks a bearer token, returning the owning username.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (username string, ok bool, err error)
	HasAnyUser(ctx context.Context) (bool, error)
}

// Sender delivers raw wire bytes back to a connected client; the
// transport multiplexer implements it.
type Sender interface {
	Send(client ClientID, data []byte)
}

// clientState is the core's per-connection bookkeeping.
type clientState struct {
	authRequired bool
	notify       bool
	username     string
	authed       bool
}

// Core is the JSON-RPC dispatch core: namespace/method registry,
// authentication gate, and notification fanout, per §4.H/§5. Callers
// are expected to invoke HandleMessage from a single serialized
// goroutine (internal/core owns that queue); the client registry below
// takes its own lock since Connect/Disconnect/Notify may legitimately
// originate from transport goroutines.
type Core struct {
	mu         sync.Mutex
	clients    map[ClientID]*clientState
	namespaces map[string]*Namespace
	auth       TokenVerifier
	sender     Sender
	logger     *slog.Logger

	serverName string
	serverID   string
	version    string

	notificationSeq atomic.Int64
}

// NewCore wires a Core. sender may be nil until the transport layer is
// ready to attach (tests often exercise HandleMessage without one).
func NewCore(auth TokenVerifier, sender Sender, serverName, serverID, version string, logger *slog.Logger) *Core {
	return &Core{
		clients:    map[ClientID]*clientState{},
		namespaces: map[string]*Namespace{},
		auth:       auth,
		sender:     sender,
		logger:     logger,
		serverName: serverName,
		serverID:   serverID,
		version:    version,
	}
}

// SetSender attaches (or replaces) the transport sender.
func (c *Core) SetSender(s Sender) { c.sender = s }

// RegisterNamespace adds ns to the dispatch table. Call once per
// namespace at startup, before serving any client.
func (c *Core) RegisterNamespace(ns *Namespace) {
	c.namespaces[ns.Name] = ns
}

// Connect registers a newly-connected client and returns the unsolicited
// Hello message (§4.H "Welcome") for the transport to send it. A client
// that is already registered keeps its existing state.
func (c *Core) Connect(ctx context.Context, client ClientID, authRequired bool) []byte {
	c.mu.Lock()
	if _, exists := c.clients[client]; !exists {
		c.clients[client] = &clientState{authRequired: authRequired, notify: !authRequired}
	}
	c.mu.Unlock()
	return c.helloMessage(ctx)
}

// Disconnect forgets a client's state.
func (c *Core) Disconnect(client ClientID) {
	c.mu.Lock()
	delete(c.clients, client)
	c.mu.Unlock()
}

func (c *Core) helloMessage(ctx context.Context) []byte {
	initialSetup := false
	if c.auth != nil {
		if any, err := c.auth.HasAnyUser(ctx); err == nil {
			initialSetup = !any
		}
	}
	payload := HelloPayload{
		ServerName:              c.serverName,
		ServerID:                c.serverID,
		Version:                 c.version,
		ProtocolVersion:         1,
		Locale:                  "en",
		InitialSetupRequired:    initialSetup,
		AuthenticationRequired:  true,
		PushButtonAuthAvailable: true,
	}
	b, _ := json.Marshal(payload)
	return b
}

// SetNotificationStatus implements the JSONRPC.SetNotificationStatus
// method's effect on client state.
func (c *Core) SetNotificationStatus(client ClientID, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.clients[client]; ok {
		st.notify = enabled
	}
}

// MarkAuthenticated records that client now holds a valid session for
// username (called after Authenticate/push-button success so later
// requests on the same connection need not re-send a token, matching
// how the teacher's session-oriented transports behave).
func (c *Core) MarkAuthenticated(client ClientID, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.clients[client]; ok {
		st.authed = true
		st.username = username
	}
}

// HandleMessage runs the full §4.H request lifecycle for one inbound
// message and returns the wire bytes to send back (never nil: a parse
// or framing failure still produces an error response).
func (c *Core) HandleMessage(ctx context.Context, client ClientID, raw []byte) []byte {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return newError(-1, "error", "invalid JSON: "+err.Error())
	}

	ns, op, ok := splitMethod(req.Method)
	if !ok {
		return newError(req.ID, "error", "malformed method "+req.Method)
	}

	username, status, reason := c.authorize(ctx, client, op, req.Token)
	if status != "" {
		return newError(req.ID, status, reason)
	}

	namespace, ok := c.namespaces[ns]
	if !ok {
		return newError(req.ID, "error", "unknown namespace "+ns)
	}
	method, ok := namespace.Methods[op]
	if !ok {
		return newError(req.ID, "error", "unknown method "+req.Method)
	}

	if err := method.validate(req.Params); err != nil {
		return newError(req.ID, "error", err.Error())
	}

	call := Call{Client: client, Params: req.Params, Token: req.Token, Username: username}
	result, err := method.Handler(ctx, call)
	if err != nil {
		return newError(req.ID, "error", errorReason(err))
	}

	if reply, isAsync := result.(*AsyncReply); isAsync {
		value, err := reply.Wait(ctx, DefaultAsyncTimeout)
		if err != nil {
			if IsTimeout(err) {
				return newError(req.ID, "error", "Command timed out")
			}
			return newError(req.ID, "error", errorReason(err))
		}
		return newSuccess(req.ID, value)
	}
	return newSuccess(req.ID, result)
}

// authorize implements §4.H's authentication gate, returning the
// resolved username (if any) or a non-empty status ("unauthorized")
// plus reason when the call must be rejected.
func (c *Core) authorize(ctx context.Context, client ClientID, method, token string) (username, status, reason string) {
	c.mu.Lock()
	st, known := c.clients[client]
	c.mu.Unlock()

	// A per-request token always resolves an identity when present,
	// exempt or not, so handlers like Tokens/RemoveToken can use it.
	if token != "" && c.auth != nil {
		if name, ok, err := c.auth.VerifyToken(ctx, token); err == nil && ok {
			username = name
		}
	} else if known && st.authed {
		username = st.username
	}

	if !known || !st.authRequired {
		return username, "", ""
	}

	hasUsers := false
	if c.auth != nil {
		hasUsers, _ = c.auth.HasAnyUser(ctx)
	}
	exempt := exemptWithUsers
	setupMsg := "invalid or missing token"
	if !hasUsers {
		exempt = exemptNoUsers
		setupMsg = "Initial setup required"
	}
	if exempt[method] {
		return username, "", ""
	}
	if username != "" {
		return username, "", ""
	}
	return "", "unauthorized", setupMsg
}

// Notify serializes and delivers a notification to every client whose
// flag is enabled (or, for PushButtonAuthFinished, only to `only`).
func (c *Core) Notify(name string, params any, only ClientID) {
	id := int(c.notificationSeq.Add(1))
	data := newNotification(id, name, params)

	if only != "" {
		c.send(only, data)
		return
	}

	c.mu.Lock()
	targets := make([]ClientID, 0, len(c.clients))
	for id, st := range c.clients {
		if st.notify {
			targets = append(targets, id)
		}
	}
	c.mu.Unlock()

	for _, id := range targets {
		c.send(id, data)
	}
}

func (c *Core) send(client ClientID, data []byte) {
	if c.sender == nil {
		return
	}
	c.sender.Send(client, data)
}

func errorReason(err error) string {
	var te *valuetype.TypedError
	if errors.As(err, &te) {
		return DescribeError(string(te.Kind), te.Msg)
	}
	return string(valuetype.BackendError)
}

func splitMethod(method string) (ns, op string, ok bool) {
	i := strings.IndexByte(method, '.')
	if i <= 0 || i == len(method)-1 {
		return "", "", false
	}
	return method[:i], method[i+1:], true
}

// IntrospectDocument describes every registered namespace for the
// Introspect method.
type IntrospectDocument struct {
	Namespaces map[string]NamespaceDoc `json:"namespaces"`
}

type NamespaceDoc struct {
	Methods       map[string]MethodDoc `json:"methods"`
	Notifications []string             `json:"notifications"`
}

type MethodDoc struct {
	ParamSchema  map[string]any `json:"paramSchema,omitempty"`
	ReturnSchema map[string]any `json:"returnSchema,omitempty"`
}

// Introspect builds the combined introspection document (§4.H "this
// publishes an introspection document combining all methods,
// notifications, and schemas").
func (c *Core) Introspect() IntrospectDocument {
	doc := IntrospectDocument{Namespaces: map[string]NamespaceDoc{}}
	for name, ns := range c.namespaces {
		methods := map[string]MethodDoc{}
		for mname, m := range ns.Methods {
			methods[mname] = MethodDoc{ParamSchema: m.ParamSchema, ReturnSchema: m.ReturnSchema}
		}
		doc.Namespaces[name] = NamespaceDoc{Methods: methods, Notifications: ns.Notifications}
	}
	return doc
}

// Version is the JSONRPC.Version method's return value.
func (c *Core) Version() string { return c.version }

// DescribeError renders a typed error's external text; kept here rather
// than in valuetype so the RPC boundary owns the final wire formatting
// decision called out in §7.
func DescribeError(kind, msg string) string {
	if msg == "" {
		return kind
	}
	return fmt.Sprintf("%s: %s", kind, msg)
}
