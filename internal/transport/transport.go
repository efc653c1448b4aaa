// Package transport implements the §4.I wire bindings (newline-delimited
// TCP, WebSocket, HTTP+WebSocket, and an AMQP cloud relay) on top of the
// transport-agnostic dispatch core in internal/core. Every transport
// only ever moves bytes in and out; method routing, schema validation,
// and authentication all live in internal/rpc.
package transport

import (
	"context"

	"github.com/felixgeelhaar/meridian/internal/rpc"
)

// Dispatcher is the surface a transport needs from the wiring core:
// register/remove a connection and hand it a raw request frame.
type Dispatcher interface {
	Connect(ctx context.Context, client rpc.ClientID, authRequired bool) []byte
	Disconnect(client rpc.ClientID)
	HandleMessage(ctx context.Context, client rpc.ClientID, raw []byte) []byte
}

// Transport is implemented by each concrete binding so the Multiplexer
// can address any of them uniformly for outbound delivery.
type Transport interface {
	// Send delivers raw bytes to client if this transport currently owns
	// that connection. A transport that doesn't recognize client is a
	// no-op, since Multiplexer fans every Send out to all transports.
	Send(client rpc.ClientID, data []byte)
}

// Multiplexer implements rpc.Sender by fanning a notification or async
// reply out to whichever transport currently owns the target client.
// Transports register themselves once at startup; the mapping from
// ClientID to owning transport is kept by each transport individually
// (a client only ever exists on the transport it connected through), so
// the multiplexer's only job is to try each one.
type Multiplexer struct {
	transports []Transport
}

// NewMultiplexer returns an empty Multiplexer; use Register to add
// transports before wiring it into rpc.Core via SetSender.
func NewMultiplexer() *Multiplexer { return &Multiplexer{} }

// Register adds t to the set of transports Send fans out to.
func (m *Multiplexer) Register(t Transport) { m.transports = append(m.transports, t) }

// Send implements rpc.Sender.
func (m *Multiplexer) Send(client rpc.ClientID, data []byte) {
	for _, t := range m.transports {
		t.Send(client, data)
	}
}

var _ rpc.Sender = (*Multiplexer)(nil)
