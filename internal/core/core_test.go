package core

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authapp "github.com/felixgeelhaar/meridian/internal/auth/application"
	authdomain "github.com/felixgeelhaar/meridian/internal/auth/domain"
	"github.com/felixgeelhaar/meridian/internal/devices"
	rulesapp "github.com/felixgeelhaar/meridian/internal/rules/application"
	"github.com/felixgeelhaar/meridian/internal/rules/domain"
	"github.com/felixgeelhaar/meridian/internal/rules/infrastructure/persistence"
	"github.com/felixgeelhaar/meridian/internal/rpc"
	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

type stubVerifier struct{}

func (stubVerifier) VerifyToken(context.Context, string) (string, bool, error) { return "", false, nil }
func (stubVerifier) HasAnyUser(context.Context) (bool, error)                 { return false, nil }

type stubSender struct{}

func (stubSender) Send(rpc.ClientID, []byte) {}

type stubUserRepo struct{}

func (stubUserRepo) Get(context.Context, string) (authdomain.User, bool, error) {
	return authdomain.User{}, false, nil
}
func (stubUserRepo) Save(context.Context, authdomain.User) error { return nil }
func (stubUserRepo) HasAny(context.Context) (bool, error)        { return false, nil }

type stubTokenRepo struct{}

func (stubTokenRepo) Save(context.Context, authdomain.Token) error { return nil }
func (stubTokenRepo) FindByHash(context.Context, []byte) (authdomain.Token, bool, error) {
	return authdomain.Token{}, false, nil
}
func (stubTokenRepo) ListForUser(context.Context, string) ([]authdomain.Token, error) {
	return nil, nil
}
func (stubTokenRepo) Delete(context.Context, valuetype.TokenID) error { return nil }

type stubAuthNotifier struct{}

func (stubAuthNotifier) PushButtonAuthFinished(context.Context, valuetype.DeviceID, authdomain.PushButtonOutcome) {
}

type stubRulesNotifier struct{}

func (stubRulesNotifier) RuleAdded(context.Context, domain.Rule)                 {}
func (stubRulesNotifier) RuleRemoved(context.Context, valuetype.RuleID)          {}
func (stubRulesNotifier) RuleConfigurationChanged(context.Context, domain.Rule)  {}
func (stubRulesNotifier) RuleActiveChanged(context.Context, domain.Rule)         {}

func newTestCore(t *testing.T) *Core {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ruleStore, err := persistence.NewFileRuleStore(t.TempDir())
	require.NoError(t, err)

	registry := devices.NewInMemoryRegistry()
	dispatcher := rulesapp.NewActionDispatcher(registry, logger)
	engine, err := rulesapp.NewRuleEngine(context.Background(), ruleStore, registry, dispatcher, stubRulesNotifier{}, logger)
	require.NoError(t, err)

	authService := authapp.NewService(stubUserRepo{}, stubTokenRepo{}, nil, stubAuthNotifier{})
	rpcCore := rpc.NewCore(stubVerifier{}, stubSender{}, "test-server", "srv-1", "1", logger)

	return New(engine, authService, rpcCore, Config{WorkQueueSize: 8, TickInterval: 20 * time.Millisecond}, logger)
}

func TestCoreSubmitRunsOnSingleWorker(t *testing.T) {
	c := newTestCore(t)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		c.Submit(func(context.Context) {
			order = append(order, i)
			if len(order) == 5 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submitted work never completed")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestCoreStartStopIdempotent(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Start(ctx)) // second Start is a no-op
	c.Stop()
	c.Stop() // second Stop is a no-op
}

func TestCoreHandleMessageRoutesThroughQueue(t *testing.T) {
	c := newTestCore(t)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	hello := c.Connect(context.Background(), rpc.ClientID("client-1"), false)
	assert.NotEmpty(t, hello)

	reply := c.HandleMessage(context.Background(), rpc.ClientID("client-1"), []byte(`{"id":1,"method":"Bogus.Method","params":{}}`))
	assert.Contains(t, string(reply), "error")

	c.Disconnect(rpc.ClientID("client-1"))
}

func TestCoreTickEvaluatesTimeOnSchedule(t *testing.T) {
	c := newTestCore(t)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	// The tick runs EvaluateTime against an empty rule set; this only
	// asserts the cron wiring doesn't deadlock the worker goroutine by
	// the time a couple of ticks should have fired.
	done := make(chan struct{})
	time.AfterFunc(100*time.Millisecond, func() {
		c.Submit(func(context.Context) { close(done) })
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker goroutine appears stuck")
	}
}
