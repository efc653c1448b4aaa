// Package namespaces implements the three RPC namespaces from §6:
// JSONRPC, Rules, Configuration.
package namespaces

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	authapp "github.com/felixgeelhaar/meridian/internal/auth/application"
	authdomain "github.com/felixgeelhaar/meridian/internal/auth/domain"
	"github.com/felixgeelhaar/meridian/internal/rpc"
	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// clientDeviceID derives a stable valuetype.DeviceID from an RPC
// ClientID so the push-button coordinator (keyed on DeviceID, since it
// has no notion of an RPC connection) can track which connection is
// waiting.
func clientDeviceID(client rpc.ClientID) valuetype.DeviceID {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(client))
	parsed, _ := valuetype.ParseDeviceID(id.String())
	return parsed
}

// PairingNotifier adapts *rpc.Core into auth/application.Notifier,
// routing PushButtonAuthFinished back to whichever client requested the
// transaction.
type PairingNotifier struct {
	core *rpc.Core
	mu   sync.Mutex
	byID map[valuetype.DeviceID]rpc.ClientID
}

// NewPairingNotifier wires core for push-button notification delivery.
func NewPairingNotifier(core *rpc.Core) *PairingNotifier {
	return &PairingNotifier{core: core, byID: map[valuetype.DeviceID]rpc.ClientID{}}
}

func (n *PairingNotifier) remember(client rpc.ClientID) {
	n.mu.Lock()
	n.byID[clientDeviceID(client)] = client
	n.mu.Unlock()
}

// PushButtonAuthFinished implements authapp.Notifier.
func (n *PairingNotifier) PushButtonAuthFinished(ctx context.Context, device valuetype.DeviceID, outcome authdomain.PushButtonOutcome) {
	n.mu.Lock()
	client, ok := n.byID[device]
	delete(n.byID, device)
	n.mu.Unlock()
	if !ok {
		return
	}
	status := "failure"
	if outcome.Success {
		status = "success"
	}
	n.core.Notify("JSONRPC.PushButtonAuthFinished", map[string]any{
		"transactionId": outcome.TransactionID.String(),
		"status":        status,
		"token":         outcome.Token,
	}, client)
}

// NewJSONRPCNamespace builds the JSONRPC namespace: Hello, Introspect,
// Version, SetNotificationStatus, CreateUser, Authenticate,
// RequestPushButtonAuth, Tokens, RemoveToken. pairing is the same
// PairingNotifier instance passed to authapp.NewService, so this
// namespace can register the requesting client before asking the
// service to start a transaction.
func NewJSONRPCNamespace(core *rpc.Core, auth *authapp.Service, pairing *PairingNotifier) (*rpc.Namespace, error) {
	ns := rpc.NewNamespace("JSONRPC")
	ns.Notifications = []string{"PushButtonAuthFinished", "CloudConnectedChanged"}

	methods := []*rpc.Method{
		{
			Name: "Hello",
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				return json.RawMessage(core.Connect(ctx, call.Client, false)), nil
			},
		},
		{
			Name: "Introspect",
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				return core.Introspect(), nil
			},
		},
		{
			Name: "Version",
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				return map[string]string{"version": core.Version()}, nil
			},
		},
		{
			Name:        "SetNotificationStatus",
			ParamSchema: objectSchema(map[string]any{"enabled": boolType()}, "enabled"),
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				var p struct {
					Enabled bool `json:"enabled"`
				}
				if err := call.Decode(&p); err != nil {
					return nil, err
				}
				core.SetNotificationStatus(call.Client, p.Enabled)
				return map[string]any{}, nil
			},
		},
		{
			Name:        "CreateUser",
			ParamSchema: objectSchema(map[string]any{"username": stringType(), "password": stringType()}, "username", "password"),
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				var p struct{ Username, Password string }
				if err := call.Decode(&p); err != nil {
					return nil, err
				}
				if err := auth.CreateUser(ctx, p.Username, p.Password); err != nil {
					return nil, err
				}
				return map[string]any{"success": true}, nil
			},
		},
		{
			Name: "Authenticate",
			ParamSchema: objectSchema(map[string]any{
				"username": stringType(), "password": stringType(), "deviceName": stringType(),
			}, "username", "password", "deviceName"),
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				var p struct{ Username, Password, DeviceName string }
				if err := call.Decode(&p); err != nil {
					return nil, err
				}
				token, err := auth.Authenticate(ctx, p.Username, p.Password, p.DeviceName)
				if err != nil {
					return map[string]any{"success": false}, nil
				}
				core.MarkAuthenticated(call.Client, p.Username)
				return map[string]any{"success": true, "token": token}, nil
			},
		},
		{
			Name:        "RequestPushButtonAuth",
			ParamSchema: objectSchema(map[string]any{"deviceName": stringType()}, "deviceName"),
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				var p struct{ DeviceName string }
				if err := call.Decode(&p); err != nil {
					return nil, err
				}
				pairing.remember(call.Client)
				tx := auth.RequestPushButtonAuth(ctx, p.DeviceName, clientDeviceID(call.Client))
				return map[string]any{"success": true, "transactionId": tx.String()}, nil
			},
		},
		{
			Name: "Tokens",
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				toks, err := auth.Tokens(ctx, call.Username)
				if err != nil {
					return nil, err
				}
				out := make([]map[string]any, 0, len(toks))
				for _, t := range toks {
					out = append(out, map[string]any{
						"tokenId":    t.ID.String(),
						"deviceName": t.DeviceName,
						"createdAt":  t.CreatedAt.Unix(),
					})
				}
				return map[string]any{"tokens": out}, nil
			},
		},
		{
			Name:        "RemoveToken",
			ParamSchema: objectSchema(map[string]any{"tokenId": stringType()}, "tokenId"),
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				var p struct{ TokenID string }
				if err := call.Decode(&p); err != nil {
					return nil, err
				}
				id, err := valuetype.ParseTokenID(p.TokenID)
				if err != nil {
					return nil, err
				}
				if err := auth.RemoveToken(ctx, id); err != nil {
					return nil, err
				}
				return map[string]any{}, nil
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
