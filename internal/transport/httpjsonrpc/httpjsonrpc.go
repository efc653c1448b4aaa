// Package httpjsonrpc implements the HTTP transport: a POST endpoint
// that carries one request/response exchange per call, paired with a
// WebSocket endpoint solely for server-push notifications (an HTTP
// response body can't carry an out-of-band notification once it's been
// sent).
package httpjsonrpc

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/felixgeelhaar/meridian/internal/rpc"
	"github.com/felixgeelhaar/meridian/internal/transport"
)

// clientHeader names the header a client supplies on every POST after
// its first call, and the header the server returns in the response to
// that first call, to persist client identity across stateless HTTP
// requests.
const clientHeader = "X-Meridian-Client"

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Transport serves JSON-RPC over HTTP POST plus a companion notification
// WebSocket, both behind one echo server.
type Transport struct {
	addr       string
	dispatcher transport.Dispatcher
	logger     *slog.Logger
	echo       *echo.Echo

	mu       sync.Mutex
	notifyWS map[rpc.ClientID]*websocket.Conn
}

// New returns an httpjsonrpc Transport listening on addr once Start is
// called.
func New(addr string, dispatcher transport.Dispatcher, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transport{
		addr:       addr,
		dispatcher: dispatcher,
		logger:     logger,
		notifyWS:   make(map[rpc.ClientID]*websocket.Conn),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.POST("/rpc", t.handleRPC)
	e.GET("/notifications", t.handleNotifications)
	t.echo = e
	return t
}

// Start launches the echo server in a background goroutine.
func (t *Transport) Start(ctx context.Context) error {
	go func() {
		if err := t.echo.Start(t.addr); err != nil && err != http.ErrServerClosed {
			t.logger.Error("httpjsonrpc transport stopped unexpectedly", "error", err)
		}
	}()
	t.logger.Info("httpjsonrpc transport started", "addr", t.addr)
	return nil
}

// Stop gracefully shuts the echo server down.
func (t *Transport) Stop() {
	if err := t.echo.Shutdown(context.Background()); err != nil {
		t.logger.Warn("httpjsonrpc shutdown error", "error", err)
	}
}

func (t *Transport) handleRPC(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	client := rpc.ClientID(c.Request().Header.Get(clientHeader))
	isNew := client == ""
	if isNew {
		client = rpc.ClientID(uuid.NewString())
		t.dispatcher.Connect(c.Request().Context(), client, true)
	}

	reply := t.dispatcher.HandleMessage(c.Request().Context(), client, raw)
	c.Response().Header().Set(clientHeader, string(client))
	return c.Blob(http.StatusOK, "application/json", reply)
}

func (t *Transport) handleNotifications(c echo.Context) error {
	client := rpc.ClientID(c.QueryParam("client"))
	if client == "" {
		return c.NoContent(http.StatusBadRequest)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	t.mu.Lock()
	t.notifyWS[client] = conn
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.notifyWS, client)
		t.mu.Unlock()
	}()

	// The notification socket is write-only from the server's side; a
	// client that sends anything is closing the connection in its own
	// way, so reading to EOF is enough to notice that and return.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

// Send implements transport.Transport, delivering to the client's
// notification WebSocket if one is open.
func (t *Transport) Send(client rpc.ClientID, data []byte) {
	t.mu.Lock()
	conn, ok := t.notifyWS[client]
	t.mu.Unlock()
	if !ok {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.logger.Warn("httpjsonrpc notify send failed", "client", client, "error", err)
	}
}

var _ transport.Transport = (*Transport)(nil)
