// Package ws implements the WebSocket transport: one JSON message per
// frame, both directions, via gorilla/websocket.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/felixgeelhaar/meridian/internal/rpc"
	"github.com/felixgeelhaar/meridian/internal/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Transport serves JSON-RPC over WebSocket connections.
type Transport struct {
	addr       string
	dispatcher transport.Dispatcher
	logger     *slog.Logger

	srv *http.Server

	mu    sync.Mutex
	conns map[rpc.ClientID]*connEntry
}

type connEntry struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// New returns a ws Transport listening on addr once Start is called.
func New(addr string, dispatcher transport.Dispatcher, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		addr:       addr,
		dispatcher: dispatcher,
		logger:     logger,
		conns:      make(map[rpc.ClientID]*connEntry),
	}
}

// Start launches the HTTP server hosting the WebSocket endpoint.
func (t *Transport) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", t.handle)
	t.srv = &http.Server{Addr: t.addr, Handler: mux}

	go func() {
		if err := t.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.logger.Error("ws transport stopped unexpectedly", "error", err)
		}
	}()

	t.logger.Info("ws transport started", "addr", t.addr)
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (t *Transport) Stop() {
	if t.srv == nil {
		return
	}
	_ = t.srv.Shutdown(context.Background())
	t.logger.Info("ws transport stopped")
}

func (t *Transport) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	client := rpc.ClientID(uuid.NewString())
	entry := &connEntry{conn: conn}

	t.mu.Lock()
	t.conns[client] = entry
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.conns, client)
		t.mu.Unlock()
		t.dispatcher.Disconnect(client)
	}()

	hello := t.dispatcher.Connect(ctx, client, true)
	if err := entry.write(hello); err != nil {
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		reply := t.dispatcher.HandleMessage(ctx, client, raw)
		if reply == nil {
			continue
		}
		if err := entry.write(reply); err != nil {
			return
		}
	}
}

func (e *connEntry) write(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn.WriteMessage(websocket.TextMessage, data)
}

// Send implements transport.Transport.
func (t *Transport) Send(client rpc.ClientID, data []byte) {
	t.mu.Lock()
	entry, ok := t.conns[client]
	t.mu.Unlock()
	if !ok {
		return
	}
	if err := entry.write(data); err != nil {
		t.logger.Warn("ws send failed", "client", client, "error", err)
	}
}

var _ transport.Transport = (*Transport)(nil)
