// Package rpc implements the JSON-RPC dispatch core from §4.H: wire
// framing, the handler/introspection registry, the authentication gate,
// async replies, and notification fanout. Transports (internal/transport)
// feed raw bytes in and get raw bytes back; they never see method
// dispatch.
package rpc

import "encoding/json"

// Request is the wire shape of a client call.
type Request struct {
	ID     int             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	Token  string          `json:"token,omitempty"`
}

// successResponse is the wire shape of a completed call.
type successResponse struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
	Params any    `json:"params,omitempty"`
}

// errorResponse is the wire shape of a failed or unauthorized call.
type errorResponse struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

// notificationMessage is the wire shape of a server-pushed event.
type notificationMessage struct {
	ID           int    `json:"id"`
	Notification string `json:"notification"`
	Params       any    `json:"params,omitempty"`
}

func newSuccess(id int, params any) []byte {
	b, _ := json.Marshal(successResponse{ID: id, Status: "success", Params: params})
	return b
}

func newError(id int, status, reason string) []byte {
	b, _ := json.Marshal(errorResponse{ID: id, Status: status, Error: reason})
	return b
}

func newNotification(id int, name string, params any) []byte {
	b, _ := json.Marshal(notificationMessage{ID: id, Notification: name, Params: params})
	return b
}

// HelloPayload is sent unsolicited on every new connection and returned
// identically by the JSONRPC.Hello method.
type HelloPayload struct {
	ServerName              string `json:"serverName"`
	ServerID                string `json:"serverId"`
	Version                 string `json:"version"`
	ProtocolVersion          int    `json:"protocolVersion"`
	Locale                   string `json:"locale"`
	InitialSetupRequired     bool   `json:"initialSetupRequired"`
	AuthenticationRequired   bool   `json:"authenticationRequired"`
	PushButtonAuthAvailable  bool   `json:"pushButtonAuthAvailable"`
}
