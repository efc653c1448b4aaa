// Package cloudrelay implements the AMQP cloud-relay transport: one
// shared inbound queue carrying envelopes tagged with their client id,
// and one routing key per client for outbound delivery — adapted from
// the teacher's own RabbitMQ publisher/consumer pair in
// internal/shared/infrastructure/eventbus.
package cloudrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/meridian/internal/rpc"
	"github.com/felixgeelhaar/meridian/internal/transport"
)

const exchangeName = "meridian.relay"

// envelope is the wire shape carried over AMQP: a JSON-RPC frame plus
// the client it belongs to, since a shared exchange has no notion of
// "connection" the way a socket does.
type envelope struct {
	Client rpc.ClientID    `json:"client"`
	Body   json.RawMessage `json:"body"`
}

// Transport relays JSON-RPC frames to and from clients connected
// through a cloud-hosted relay rather than a direct socket.
type Transport struct {
	url        string
	queue      string
	dispatcher transport.Dispatcher
	logger     *slog.Logger

	conn    *amqp.Connection
	channel *amqp.Channel

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	seen map[rpc.ClientID]bool
}

// New returns a cloudrelay Transport that will dial url and consume
// from queue once Start is called.
func New(url, queue string, dispatcher transport.Dispatcher, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if queue == "" {
		queue = "meridian.relay.inbound"
	}
	return &Transport{
		url:        url,
		queue:      queue,
		dispatcher: dispatcher,
		logger:     logger,
		seen:       make(map[rpc.ClientID]bool),
	}
}

// Start dials the broker, declares the exchange/queue, and begins
// consuming in a background goroutine.
func (t *Transport) Start(ctx context.Context) error {
	conn, err := amqp.Dial(t.url)
	if err != nil {
		return fmt.Errorf("cloudrelay: connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("cloudrelay: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchangeName, "direct", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("cloudrelay: declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(t.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("cloudrelay: declare queue: %w", err)
	}
	if err := ch.QueueBind(t.queue, "inbound", exchangeName, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("cloudrelay: bind queue: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.channel = ch
	t.running = true
	t.stop = make(chan struct{})
	t.mu.Unlock()

	t.wg.Add(1)
	go t.consume(ctx)

	t.logger.Info("cloudrelay transport started", "queue", t.queue)
	return nil
}

// Stop stops consuming and closes the AMQP channel/connection.
func (t *Transport) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stop)
	channel, conn := t.channel, t.conn
	t.mu.Unlock()

	t.wg.Wait()
	if channel != nil {
		_ = channel.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	t.logger.Info("cloudrelay transport stopped")
}

func (t *Transport) consume(ctx context.Context) {
	defer t.wg.Done()

	msgs, err := t.channel.Consume(t.queue, "", false, false, false, false, nil)
	if err != nil {
		t.logger.Error("cloudrelay consume failed to start", "error", err)
		return
	}

	for {
		select {
		case <-t.stop:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			t.handle(ctx, msg)
		}
	}
}

func (t *Transport) handle(ctx context.Context, msg amqp.Delivery) {
	var env envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		t.logger.Error("cloudrelay: malformed envelope, discarding", "error", err)
		_ = msg.Ack(false)
		return
	}

	t.mu.Lock()
	isNew := !t.seen[env.Client]
	t.seen[env.Client] = true
	t.mu.Unlock()
	if isNew {
		t.dispatcher.Connect(ctx, env.Client, true)
	}

	reply := t.dispatcher.HandleMessage(ctx, env.Client, env.Body)
	if reply != nil {
		t.Send(env.Client, reply)
	}
	_ = msg.Ack(false)
}

// Send implements transport.Transport, publishing to the routing key
// that fans out to client's relay binding.
func (t *Transport) Send(client rpc.ClientID, data []byte) {
	t.mu.Lock()
	channel, known := t.channel, t.seen[client]
	t.mu.Unlock()
	if channel == nil || !known {
		return
	}

	body, err := json.Marshal(envelope{Client: client, Body: data})
	if err != nil {
		t.logger.Warn("cloudrelay: encode envelope failed", "error", err)
		return
	}
	err = channel.PublishWithContext(context.Background(), exchangeName, "outbound."+string(client), false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		t.logger.Warn("cloudrelay send failed", "client", client, "error", err)
	}
}

var _ transport.Transport = (*Transport)(nil)
