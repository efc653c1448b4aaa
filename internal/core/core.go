// Package core wires the rule engine, auth service, and RPC dispatch
// core together behind a single serialized work queue, per §5's
// guidance that event evaluation, time evaluation, and RPC method
// dispatch all run on one goroutine so the rule engine never needs its
// own locking.
package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	authapp "github.com/felixgeelhaar/meridian/internal/auth/application"
	rulesapp "github.com/felixgeelhaar/meridian/internal/rules/application"
	"github.com/felixgeelhaar/meridian/internal/rpc"
	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// Config tunes the serialized queue and its cron tick.
type Config struct {
	// WorkQueueSize bounds how many pending work items (RPC calls,
	// device events) may wait for the single worker goroutine before
	// Submit starts blocking the caller.
	WorkQueueSize int
	// TickInterval drives EvaluateTime; §4.F's time-trigger resolution
	// is one second, matching the teacher's own outbox poll loop shape.
	TickInterval time.Duration
}

// DefaultConfig returns the tuning used when no Config is supplied.
func DefaultConfig() Config {
	return Config{WorkQueueSize: 256, TickInterval: time.Second}
}

// Core serializes every mutation of the rule engine and auth service
// through a single goroutine. RPC dispatch, device event ingress, and
// the cron time-tick all submit work to the same queue instead of
// calling into the engine directly from their own goroutines.
type Core struct {
	engine *rulesapp.RuleEngine
	auth   *authapp.Service
	rpc    *rpc.Core
	cron   *cron.Cron
	logger *slog.Logger

	cfg  Config
	work chan func(ctx context.Context)

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New wires engine, auth, and rpcCore behind a serialized work queue.
func New(engine *rulesapp.RuleEngine, auth *authapp.Service, rpcCore *rpc.Core, cfg Config, logger *slog.Logger) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WorkQueueSize <= 0 {
		cfg.WorkQueueSize = DefaultConfig().WorkQueueSize
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	return &Core{
		engine: engine,
		auth:   auth,
		rpc:    rpcCore,
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
		cfg:    cfg,
		work:   make(chan func(ctx context.Context), cfg.WorkQueueSize),
	}
}

// Start launches the worker goroutine and the time-tick schedule. It is
// a no-op if already running.
func (c *Core) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.stop = make(chan struct{})
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runWorker(ctx)

	spec := "@every " + c.cfg.TickInterval.String()
	if _, err := c.cron.AddFunc(spec, func() {
		c.Submit(func(ctx context.Context) {
			c.engine.EvaluateTime(ctx, time.Now())
		})
	}); err != nil {
		return err
	}
	c.cron.Start()

	c.logger.Info("core started", "tick_interval", c.cfg.TickInterval)
	return nil
}

// Stop drains the cron schedule and the worker goroutine.
func (c *Core) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stop := c.stop
	c.mu.Unlock()

	cronCtx := c.cron.Stop()
	<-cronCtx.Done()

	close(stop)
	c.wg.Wait()
	c.logger.Info("core stopped")
}

func (c *Core) runWorker(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		case fn := <-c.work:
			fn(ctx)
		}
	}
}

// Submit enqueues fn to run on the single serialized worker goroutine,
// blocking the caller until a slot is free.
func (c *Core) Submit(fn func(ctx context.Context)) {
	c.work <- fn
}

// Connect registers a newly-accepted transport connection with the RPC
// core and returns its Hello payload. Connection bookkeeping uses the
// RPC core's own lock rather than the work queue, since transports may
// accept concurrently and registering a client never touches engine or
// auth state.
func (c *Core) Connect(ctx context.Context, client rpc.ClientID, authRequired bool) []byte {
	return c.rpc.Connect(ctx, client, authRequired)
}

// Disconnect removes a client's RPC session state. It does not cancel a
// pending push-button transaction that the client requested; that
// transaction stays pending until it is pressed, cancelled or pre-empted.
func (c *Core) Disconnect(client rpc.ClientID) {
	c.rpc.Disconnect(client)
}

// SetSender wires the transport multiplexer that delivers notifications
// and async replies back out to connected clients.
func (c *Core) SetSender(s rpc.Sender) { c.rpc.SetSender(s) }

// HandleMessage serializes one JSON-RPC request through the work queue
// and returns its response bytes, so every namespace handler touching
// the rule engine or auth service runs with the same single-writer
// guarantee the cron tick and device events get.
func (c *Core) HandleMessage(ctx context.Context, client rpc.ClientID, raw []byte) []byte {
	replyCh := make(chan []byte, 1)
	c.Submit(func(ctx context.Context) {
		replyCh <- c.rpc.HandleMessage(ctx, client, raw)
	})
	select {
	case reply := <-replyCh:
		return reply
	case <-ctx.Done():
		return nil
	}
}

// IngestDeviceEvent decodes envelope and evaluates it against every
// enabled rule, via the serialized queue. Device plugins themselves are
// out of scope; this is the boundary an adapter publishes onto.
func (c *Core) IngestDeviceEvent(ctx context.Context, envelope rulesapp.DeviceEventEnvelope) {
	event, err := envelope.ToEvent()
	if err != nil {
		c.logger.Warn("dropping malformed device event", "error", err)
		return
	}
	c.Submit(func(ctx context.Context) {
		c.engine.EvaluateEvent(ctx, event)
	})
}

// NotifyButtonPressed wires a device's physical button-press event into
// the auth service's push-button transaction, per §4.G. This is not an
// RPC-exposed method: the client only ever sees the outcome via the
// PushButtonAuthFinished notification, raised once the transaction
// resolves.
func (c *Core) NotifyButtonPressed(ctx context.Context, username, deviceName string) {
	c.Submit(func(ctx context.Context) {
		if err := c.auth.PushButtonPressed(ctx, username, deviceName); err != nil {
			c.logger.Warn("push-button resolution failed", "device", deviceName, "error", err)
		}
	})
}

// NotifyButtonCancelled pre-empts a pending push-button transaction,
// e.g. because the device disconnected before a user pressed anything.
func (c *Core) NotifyButtonCancelled(ctx context.Context, tx valuetype.PairingTransactionID) {
	c.Submit(func(ctx context.Context) {
		c.auth.CancelPushButtonAuth(ctx, tx)
	})
}

// Engine exposes the underlying rule engine for components (namespace
// registration, tests) that need direct read access outside the queue.
func (c *Core) Engine() *rulesapp.RuleEngine { return c.engine }

// Auth exposes the underlying auth service for the same reason.
func (c *Core) Auth() *authapp.Service { return c.auth }
