package devices

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/felixgeelhaar/meridian/internal/valuetype"
	goplugin "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// Handshake is the go-plugin handshake both the host and a device plugin
// binary must agree on before a connection is accepted.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "MERIDIAN_DEVICE_PLUGIN",
	MagicCookieValue: "meridian-device-v1",
}

// PluginMap names the single exported plugin a device plugin binary must
// serve under.
var PluginMap = map[string]goplugin.Plugin{
	"registry": &registryPlugin{},
}

const serviceName = "meridian.devices.Registry"

// jsonCodec is a grpc encoding.Codec that marshals RPC payloads with
// encoding/json rather than protobuf. Device plugins are a narrow,
// internally-defined boundary (no cross-language proto contract to keep
// in sync), so a generated .pb.go pair would add a code-generation step
// without buying anything a plain JSON envelope doesn't already give us.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// wire request/response envelopes, one per Registry method.

type deviceStateReq struct {
	Device    valuetype.DeviceID    `json:"device"`
	StateType valuetype.StateTypeID `json:"stateType"`
}
type deviceStateResp struct {
	Value valuetype.TypedValue `json:"value"`
	Found bool                 `json:"found"`
}

type idReq struct {
	ID string `json:"id"`
}
type boolResp struct {
	Value bool `json:"value"`
}

type paramKindReq struct {
	ParamType valuetype.ParamTypeID `json:"paramType"`
}
type eventParamKindReq struct {
	EventType valuetype.EventTypeID `json:"eventType"`
	ParamType valuetype.ParamTypeID `json:"paramType"`
}
type kindResp struct {
	Kind  valuetype.Kind `json:"kind"`
	Found bool           `json:"found"`
}

type dispatchReq struct {
	Action ActionRequest `json:"action"`
}
type dispatchResp struct {
	Error string `json:"error,omitempty"`
}

// serviceDesc is the hand-written grpc.ServiceDesc standing in for what
// protoc-gen-go-grpc would otherwise generate: one unary method per
// Registry operation, dispatched by method name.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*registryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "DeviceState", Handler: handleDeviceState},
		{MethodName: "DeviceExists", Handler: handleDeviceExists},
		{MethodName: "StateTypeExists", Handler: handleStateTypeExists},
		{MethodName: "EventTypeExists", Handler: handleEventTypeExists},
		{MethodName: "ActionTypeExists", Handler: handleActionTypeExists},
		{MethodName: "ParamKind", Handler: handleParamKind},
		{MethodName: "EventParamKind", Handler: handleEventParamKind},
		{MethodName: "Dispatch", Handler: handleDispatch},
	},
}

// registryServer is implemented by whatever sits on the plugin side of
// the connection (the device plugin process); registryPlugin.GRPCServer
// wires a Registry implementation into this shape.
type registryServer interface {
	Registry
}

func handleDeviceState(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	var req deviceStateReq
	if err := dec(&req); err != nil {
		return nil, err
	}
	v, ok, err := srv.(registryServer).DeviceState(ctx, req.Device, req.StateType)
	if err != nil {
		return nil, err
	}
	return &deviceStateResp{Value: v, Found: ok}, nil
}

func handleDeviceExists(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	var req idReq
	if err := dec(&req); err != nil {
		return nil, err
	}
	id, err := valuetype.ParseDeviceID(req.ID)
	if err != nil {
		return nil, err
	}
	return &boolResp{Value: srv.(registryServer).DeviceExists(ctx, id)}, nil
}

func handleStateTypeExists(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	var req idReq
	if err := dec(&req); err != nil {
		return nil, err
	}
	id, err := valuetype.ParseStateTypeID(req.ID)
	if err != nil {
		return nil, err
	}
	return &boolResp{Value: srv.(registryServer).StateTypeExists(ctx, id)}, nil
}

func handleEventTypeExists(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	var req idReq
	if err := dec(&req); err != nil {
		return nil, err
	}
	id, err := valuetype.ParseEventTypeID(req.ID)
	if err != nil {
		return nil, err
	}
	return &boolResp{Value: srv.(registryServer).EventTypeExists(ctx, id)}, nil
}

func handleActionTypeExists(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	var req idReq
	if err := dec(&req); err != nil {
		return nil, err
	}
	id, err := valuetype.ParseActionTypeID(req.ID)
	if err != nil {
		return nil, err
	}
	return &boolResp{Value: srv.(registryServer).ActionTypeExists(ctx, id)}, nil
}

func handleParamKind(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	var req paramKindReq
	if err := dec(&req); err != nil {
		return nil, err
	}
	k, ok := srv.(registryServer).ParamKind(ctx, req.ParamType)
	return &kindResp{Kind: k, Found: ok}, nil
}

func handleEventParamKind(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	var req eventParamKindReq
	if err := dec(&req); err != nil {
		return nil, err
	}
	k, ok := srv.(registryServer).EventParamKind(ctx, req.EventType, req.ParamType)
	return &kindResp{Kind: k, Found: ok}, nil
}

func handleDispatch(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	var req dispatchReq
	if err := dec(&req); err != nil {
		return nil, err
	}
	resp := &dispatchResp{}
	if err := srv.(registryServer).Dispatch(ctx, req.Action); err != nil {
		resp.Error = err.Error()
	}
	return resp, nil
}

// registryPlugin implements goplugin.GRPCPlugin, binding a host-side
// PluginRegistry client to whatever Registry implementation the plugin
// process serves.
type registryPlugin struct {
	goplugin.Plugin
	Impl Registry
}

func (p *registryPlugin) GRPCServer(_ *goplugin.GRPCBroker, s *grpc.Server) error {
	s.RegisterService(&serviceDesc, p.Impl)
	return nil
}

func (p *registryPlugin) GRPCClient(_ context.Context, _ *goplugin.GRPCBroker, conn *grpc.ClientConn) (interface{}, error) {
	return &PluginRegistry{conn: conn}, nil
}

// PluginRegistry is the host-side Registry implementation backed by an
// out-of-process device plugin, launched and supervised via go-plugin.
type PluginRegistry struct {
	client *goplugin.Client
	conn   *grpc.ClientConn
}

// LaunchPluginRegistry starts the plugin binary at path and returns a
// Registry talking to it over gRPC with the JSON codec.
func LaunchPluginRegistry(path string) (*PluginRegistry, error) {
	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins:         PluginMap,
		Cmd:             exec.Command(path),
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolGRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("launch device plugin: %w", err)
	}
	raw, err := rpcClient.Dispense("registry")
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("dispense device plugin: %w", err)
	}
	reg := raw.(*PluginRegistry)
	reg.client = client
	return reg, nil
}

// Close terminates the backing plugin process.
func (p *PluginRegistry) Close() {
	if p.client != nil {
		p.client.Kill()
	}
}

func (p *PluginRegistry) call(ctx context.Context, method string, req, resp interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.conn.Invoke(ctx, "/"+serviceName+"/"+method, req, resp, grpc.CallContentSubtype("json"))
}

func (p *PluginRegistry) DeviceState(ctx context.Context, device valuetype.DeviceID, stateType valuetype.StateTypeID) (valuetype.TypedValue, bool, error) {
	resp := &deviceStateResp{}
	if err := p.call(ctx, "DeviceState", &deviceStateReq{Device: device, StateType: stateType}, resp); err != nil {
		return valuetype.TypedValue{}, false, err
	}
	return resp.Value, resp.Found, nil
}

func (p *PluginRegistry) DeviceExists(ctx context.Context, device valuetype.DeviceID) bool {
	resp := &boolResp{}
	if err := p.call(ctx, "DeviceExists", &idReq{ID: device.String()}, resp); err != nil {
		return false
	}
	return resp.Value
}

func (p *PluginRegistry) StateTypeExists(ctx context.Context, stateType valuetype.StateTypeID) bool {
	resp := &boolResp{}
	if err := p.call(ctx, "StateTypeExists", &idReq{ID: stateType.String()}, resp); err != nil {
		return false
	}
	return resp.Value
}

func (p *PluginRegistry) EventTypeExists(ctx context.Context, eventType valuetype.EventTypeID) bool {
	resp := &boolResp{}
	if err := p.call(ctx, "EventTypeExists", &idReq{ID: eventType.String()}, resp); err != nil {
		return false
	}
	return resp.Value
}

func (p *PluginRegistry) ActionTypeExists(ctx context.Context, actionType valuetype.ActionTypeID) bool {
	resp := &boolResp{}
	if err := p.call(ctx, "ActionTypeExists", &idReq{ID: actionType.String()}, resp); err != nil {
		return false
	}
	return resp.Value
}

func (p *PluginRegistry) ParamKind(ctx context.Context, paramType valuetype.ParamTypeID) (valuetype.Kind, bool) {
	resp := &kindResp{}
	if err := p.call(ctx, "ParamKind", &paramKindReq{ParamType: paramType}, resp); err != nil {
		return "", false
	}
	return resp.Kind, resp.Found
}

func (p *PluginRegistry) EventParamKind(ctx context.Context, eventType valuetype.EventTypeID, paramType valuetype.ParamTypeID) (valuetype.Kind, bool) {
	resp := &kindResp{}
	if err := p.call(ctx, "EventParamKind", &eventParamKindReq{EventType: eventType, ParamType: paramType}, resp); err != nil {
		return "", false
	}
	return resp.Kind, resp.Found
}

func (p *PluginRegistry) Dispatch(ctx context.Context, action ActionRequest) error {
	resp := &dispatchResp{}
	if err := p.call(ctx, "Dispatch", &dispatchReq{Action: action}, resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return valuetype.NewError(valuetype.BackendError, resp.Error)
	}
	return nil
}

// Serve is called from a device plugin binary's main function to expose
// impl as the out-of-process registry a meridiand core can launch.
func Serve(impl Registry) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			"registry": &registryPlugin{Impl: impl},
		},
		GRPCServer: goplugin.DefaultGRPCServer,
	})
}

