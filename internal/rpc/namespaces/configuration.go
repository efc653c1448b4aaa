package namespaces

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/meridian/internal/rpc"
	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// curatedTimeZones is the fixed list GetTimeZones enumerates from.
// Go's stdlib exposes time.LoadLocation but no "list every zone" API
// and no example repo in the pack carries a timezone-database library,
// so this curated list is a documented stdlib-only choice (see
// DESIGN.md).
var curatedTimeZones = []string{
	"UTC",
	"America/New_York", "America/Chicago", "America/Denver", "America/Los_Angeles",
	"Europe/London", "Europe/Berlin", "Europe/Paris", "Europe/Madrid", "Europe/Moscow",
	"Asia/Tokyo", "Asia/Shanghai", "Asia/Kolkata", "Asia/Dubai",
	"Australia/Sydney", "Pacific/Auckland",
}

// TransportConfig is one entry in the per-transport CRUD set §6 names
// (id, address, port∈1..65535, TLS flag, auth flag).
type TransportConfig struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Port    int    `json:"port"`
	TLS     bool   `json:"tls"`
	Auth    bool   `json:"auth"`
}

// Configuration holds the server-wide settings §6 names: name, time
// zone, language, and the transport configuration set.
type Configuration struct {
	mu         sync.Mutex
	ServerName string
	TimeZone   string
	Language   string
	transports map[string]TransportConfig
}

// NewConfiguration returns a Configuration seeded with defaults.
func NewConfiguration(serverName string) *Configuration {
	return &Configuration{
		ServerName: serverName,
		TimeZone:   "UTC",
		Language:   "en",
		transports: map[string]TransportConfig{},
	}
}

func isValidTimeZone(tz string) bool {
	for _, z := range curatedTimeZones {
		if z == tz {
			return true
		}
	}
	return false
}

// NewConfigurationNamespace builds the Configuration namespace: server
// name/time-zone/language getters and setters, GetTimeZones, and
// per-transport CRUD.
func NewConfigurationNamespace(cfg *Configuration) (*rpc.Namespace, error) {
	ns := rpc.NewNamespace("Configuration")

	methods := []*rpc.Method{
		{
			Name: "Get",
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				cfg.mu.Lock()
				defer cfg.mu.Unlock()
				transports := make([]TransportConfig, 0, len(cfg.transports))
				for _, t := range cfg.transports {
					transports = append(transports, t)
				}
				return map[string]any{
					"serverName": cfg.ServerName,
					"timeZone":   cfg.TimeZone,
					"language":   cfg.Language,
					"transports": transports,
				}, nil
			},
		},
		{
			Name: "GetTimeZones",
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				return map[string]any{"timeZones": curatedTimeZones}, nil
			},
		},
		{
			Name: "SetServerName",
			ParamSchema: objectSchema(map[string]any{"name": stringType()}, "name"),
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				var p struct{ Name string }
				if err := call.Decode(&p); err != nil {
					return nil, err
				}
				cfg.mu.Lock()
				cfg.ServerName = p.Name
				cfg.mu.Unlock()
				return map[string]any{}, nil
			},
		},
		{
			Name: "SetTimeZone",
			ParamSchema: objectSchema(map[string]any{"timeZone": stringType()}, "timeZone"),
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				var p struct {
					TimeZone string `json:"timeZone"`
				}
				if err := call.Decode(&p); err != nil {
					return nil, err
				}
				if !isValidTimeZone(p.TimeZone) {
					return nil, valuetype.NewError(valuetype.InvalidParameter, "timeZone must be one returned by GetTimeZones")
				}
				cfg.mu.Lock()
				cfg.TimeZone = p.TimeZone
				cfg.mu.Unlock()
				return map[string]any{}, nil
			},
		},
		{
			Name: "SetLanguage",
			ParamSchema: objectSchema(map[string]any{"language": stringType()}, "language"),
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				var p struct{ Language string }
				if err := call.Decode(&p); err != nil {
					return nil, err
				}
				cfg.mu.Lock()
				cfg.Language = p.Language
				cfg.mu.Unlock()
				return map[string]any{}, nil
			},
		},
		{
			Name: "SetTransport",
			ParamSchema: objectSchema(map[string]any{
				"id": stringType(), "address": stringType(), "port": intType(),
				"tls": boolType(), "auth": boolType(),
			}, "id", "address", "port"),
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				var t TransportConfig
				if err := call.Decode(&t); err != nil {
					return nil, err
				}
				if t.Port < 1 || t.Port > 65535 {
					return nil, valuetype.NewError(valuetype.InvalidParameter, "port must be in 1..65535")
				}
				cfg.mu.Lock()
				cfg.transports[t.ID] = t
				cfg.mu.Unlock()
				return map[string]any{}, nil
			},
		},
		{
			Name:        "RemoveTransport",
			ParamSchema: objectSchema(map[string]any{"id": stringType()}, "id"),
			Handler: func(ctx context.Context, call rpc.Call) (any, error) {
				var p struct{ ID string }
				if err := call.Decode(&p); err != nil {
					return nil, err
				}
				cfg.mu.Lock()
				delete(cfg.transports, p.ID)
				cfg.mu.Unlock()
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
