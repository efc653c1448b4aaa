package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	hasUsers bool
	tokens   map[string]string // token -> username
}

func (f *fakeVerifier) VerifyToken(ctx context.Context, token string) (string, bool, error) {
	name, ok := f.tokens[token]
	return name, ok, nil
}

func (f *fakeVerifier) HasAnyUser(ctx context.Context) (bool, error) { return f.hasUsers, nil }

type fakeSender struct {
	sent map[ClientID][][]byte
}

func newFakeSender() *fakeSender { return &fakeSender{sent: map[ClientID][][]byte{}} }

func (f *fakeSender) Send(client ClientID, data []byte) {
	f.sent[client] = append(f.sent[client], data)
}

func echoNamespace(t *testing.T) *Namespace {
	t.Helper()
	ns := NewNamespace("Echo")
	require.NoError(t, ns.AddMethod(&Method{
		Name: "Ping",
		Handler: func(ctx context.Context, call Call) (any, error) {
			return map[string]any{"username": call.Username}, nil
		},
	}))
	return ns
}

func newTestCore(t *testing.T, hasUsers bool) (*Core, *fakeVerifier, *fakeSender) {
	t.Helper()
	verifier := &fakeVerifier{hasUsers: hasUsers, tokens: map[string]string{"good-token": "alice"}}
	sender := newFakeSender()
	core := NewCore(verifier, sender, "test-server", "srv-1", "1", slog.Default())
	core.RegisterNamespace(echoNamespace(t))
	return core, verifier, sender
}

func request(method string, token string) []byte {
	req := map[string]any{"id": 1, "method": method, "params": map[string]any{}}
	if token != "" {
		req["token"] = token
	}
	b, _ := json.Marshal(req)
	return b
}

func TestHandleMessage_NoUsersYetRejectsNonExemptMethod(t *testing.T) {
	core, _, _ := newTestCore(t, false)
	client := ClientID("c1")
	core.Connect(context.Background(), client, true)

	reply := core.HandleMessage(context.Background(), client, request("Echo.Ping", ""))
	var resp map[string]any
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.Equal(t, "unauthorized", resp["status"])
}

func TestHandleMessage_ValidTokenAuthorizes(t *testing.T) {
	core, _, _ := newTestCore(t, true)
	client := ClientID("c1")
	core.Connect(context.Background(), client, true)

	reply := core.HandleMessage(context.Background(), client, request("Echo.Ping", "good-token"))
	var resp map[string]any
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.Equal(t, "success", resp["status"])
	params := resp["params"].(map[string]any)
	assert.Equal(t, "alice", params["username"])
}

func TestHandleMessage_MissingTokenRejectedWhenUsersExist(t *testing.T) {
	core, _, _ := newTestCore(t, true)
	client := ClientID("c1")
	core.Connect(context.Background(), client, true)

	reply := core.HandleMessage(context.Background(), client, request("Echo.Ping", ""))
	var resp map[string]any
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.Equal(t, "unauthorized", resp["status"])
}

func TestHandleMessage_NoAuthRequiredAllowsAnyCall(t *testing.T) {
	core, _, _ := newTestCore(t, true)
	client := ClientID("c1")
	core.Connect(context.Background(), client, false)

	reply := core.HandleMessage(context.Background(), client, request("Echo.Ping", ""))
	var resp map[string]any
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.Equal(t, "success", resp["status"])
}

func TestNotify_OnlySkipsDisabledClients(t *testing.T) {
	core, _, sender := newTestCore(t, true)
	a, b := ClientID("a"), ClientID("b")
	core.Connect(context.Background(), a, false)
	core.Connect(context.Background(), b, false)
	core.SetNotificationStatus(b, false)

	core.Notify("Rules.RuleAdded", map[string]any{"ruleId": "x"}, "")

	assert.Len(t, sender.sent[a], 1)
	assert.Len(t, sender.sent[b], 0)
}

func TestNotify_OnlyTargetsSingleClient(t *testing.T) {
	core, _, sender := newTestCore(t, true)
	a, b := ClientID("a"), ClientID("b")
	core.Connect(context.Background(), a, false)
	core.Connect(context.Background(), b, false)

	core.Notify("JSONRPC.PushButtonAuthFinished", map[string]any{}, a)

	assert.Len(t, sender.sent[a], 1)
	assert.Len(t, sender.sent[b], 0)
}
