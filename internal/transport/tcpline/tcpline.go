// Package tcpline implements the newline-delimited JSON transport: one
// request or one response per line over a plain net.Listener. This is
// the simplest of §4.I's bindings and has no third-party counterpart in
// the pack that fits better than net itself (see DESIGN.md), so it is a
// documented stdlib-only transport.
package tcpline

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/meridian/internal/rpc"
	"github.com/felixgeelhaar/meridian/internal/transport"
)

// Transport listens on a TCP address and speaks one JSON message per
// line in both directions.
type Transport struct {
	addr       string
	dispatcher transport.Dispatcher
	logger     *slog.Logger

	mu      sync.Mutex
	conns   map[rpc.ClientID]net.Conn
	ln      net.Listener
	wg      sync.WaitGroup
	running bool
}

// New returns a tcpline Transport listening on addr once Start is called.
func New(addr string, dispatcher transport.Dispatcher, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		addr:       addr,
		dispatcher: dispatcher,
		logger:     logger,
		conns:      make(map[rpc.ClientID]net.Conn),
	}
}

// Start opens the listener and begins accepting connections in a
// background goroutine.
func (t *Transport) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.ln = ln
	t.running = true
	t.mu.Unlock()

	t.wg.Add(1)
	go t.acceptLoop(ctx)

	t.logger.Info("tcpline transport started", "addr", t.addr)
	return nil
}

// Stop closes the listener and every open connection.
func (t *Transport) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	if t.ln != nil {
		_ = t.ln.Close()
	}
	for id, conn := range t.conns {
		_ = conn.Close()
		delete(t.conns, id)
	}
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Info("tcpline transport stopped")
}

func (t *Transport) acceptLoop(ctx context.Context) {
	defer t.wg.Done()
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			t.mu.Lock()
			stopped := !t.running
			t.mu.Unlock()
			if stopped {
				return
			}
			t.logger.Warn("tcpline accept failed", "error", err)
			continue
		}
		t.wg.Add(1)
		go t.serve(ctx, conn)
	}
}

func (t *Transport) serve(ctx context.Context, conn net.Conn) {
	defer t.wg.Done()
	defer conn.Close()

	client := rpc.ClientID(uuid.NewString())
	t.mu.Lock()
	t.conns[client] = conn
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.conns, client)
		t.mu.Unlock()
		t.dispatcher.Disconnect(client)
	}()

	hello := t.dispatcher.Connect(ctx, client, true)
	if err := writeLine(conn, hello); err != nil {
		return
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		reply := t.dispatcher.HandleMessage(ctx, client, append([]byte(nil), raw...))
		if reply == nil {
			continue
		}
		if err := writeLine(conn, reply); err != nil {
			return
		}
	}
}

func writeLine(conn net.Conn, data []byte) error {
	if _, err := conn.Write(data); err != nil {
		return err
	}
	_, err := conn.Write([]byte("\n"))
	return err
}

// Send implements transport.Transport.
func (t *Transport) Send(client rpc.ClientID, data []byte) {
	t.mu.Lock()
	conn, ok := t.conns[client]
	t.mu.Unlock()
	if !ok {
		return
	}
	if err := writeLine(conn, data); err != nil {
		t.logger.Warn("tcpline send failed", "client", client, "error", err)
	}
}

var _ transport.Transport = (*Transport)(nil)
