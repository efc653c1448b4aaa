package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	authapp "github.com/felixgeelhaar/meridian/internal/auth/application"
	authcache "github.com/felixgeelhaar/meridian/internal/auth/infrastructure/cache"
	authpersistence "github.com/felixgeelhaar/meridian/internal/auth/infrastructure/persistence"
	"github.com/felixgeelhaar/meridian/internal/core"
	"github.com/felixgeelhaar/meridian/internal/devices"
	rulesapp "github.com/felixgeelhaar/meridian/internal/rules/application"
	rulespersistence "github.com/felixgeelhaar/meridian/internal/rules/infrastructure/persistence"
	"github.com/felixgeelhaar/meridian/internal/rpc"
	"github.com/felixgeelhaar/meridian/internal/rpc/namespaces"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database/postgres"
	_ "github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/meridian/internal/transport"
	"github.com/felixgeelhaar/meridian/internal/transport/cloudrelay"
	"github.com/felixgeelhaar/meridian/internal/transport/httpjsonrpc"
	"github.com/felixgeelhaar/meridian/internal/transport/tcpline"
	"github.com/felixgeelhaar/meridian/internal/transport/ws"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/meridian/pkg/config"
)

// protocolVersion is the wire version §4.H's Hello handshake reports.
const protocolVersion = "1"

// authVerifier adapts a *authapp.Service into rpc.TokenVerifier. It
// exists to break the construction cycle between rpc.Core (which needs
// a verifier) and authapp.Service (whose Notifier needs rpc.Core): the
// verifier is created empty, handed to rpc.NewCore, and only then
// pointed at the real service once it exists.
type authVerifier struct {
	svc *authapp.Service
}

func (a *authVerifier) VerifyToken(ctx context.Context, token string) (string, bool, error) {
	return a.svc.VerifyToken(ctx, token)
}

func (a *authVerifier) HasAnyUser(ctx context.Context) (bool, error) {
	return a.svc.HasAnyUser(ctx)
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func dbConfig(cfg *config.Config) database.Config {
	if cfg.IsLocalMode() {
		path := cfg.SQLitePath
		if path == "" {
			path = database.DefaultSQLitePath()
		}
		return database.Config{Driver: database.DriverSQLite, SQLitePath: path}
	}
	return database.Config{Driver: database.DetectDriver(cfg.DatabaseURL), URL: cfg.DatabaseURL, MaxConns: 10}
}

func rulesDir(cfg *config.Config) string {
	if cfg.RulesPath != "" {
		return cfg.RulesPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".meridian/rules"
	}
	return home + "/.meridian/rules"
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	dbCfg := dbConfig(cfg)
	if dbCfg.Driver == database.DriverSQLite {
		if err := database.EnsureDirectory(dbCfg.SQLitePath); err != nil {
			return fmt.Errorf("prepare sqlite path: %w", err)
		}
	}
	conn, err := database.NewConnection(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer conn.Close()

	store := authpersistence.NewStore(conn)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate auth store: %w", err)
	}

	var tokenCache authapp.TokenCache = authapp.NoCache{}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		tokenCache = authcache.NewRedisCache(redis.NewClient(opts), 10*time.Minute)
	}

	verifier := &authVerifier{}
	rpcCore := rpc.NewCore(verifier, nil, cfg.ServerName, uuid.NewString(), protocolVersion, logger)

	pairing := namespaces.NewPairingNotifier(rpcCore)
	authService := authapp.NewService(store, store, tokenCache, pairing)
	verifier.svc = authService

	registry := devices.NewInMemoryRegistry()
	dispatcher := rulesapp.NewActionDispatcher(registry, logger)
	ruleStore, err := rulespersistence.NewFileRuleStore(rulesDir(cfg))
	if err != nil {
		return fmt.Errorf("open rule store: %w", err)
	}
	rulesNotifier := namespaces.NewRulesNotifier(rpcCore)
	engine, err := rulesapp.NewRuleEngine(ctx, ruleStore, registry, dispatcher, rulesNotifier, logger)
	if err != nil {
		return fmt.Errorf("start rule engine: %w", err)
	}

	jsonrpcNS, err := namespaces.NewJSONRPCNamespace(rpcCore, authService, pairing)
	if err != nil {
		return fmt.Errorf("build JSONRPC namespace: %w", err)
	}
	rulesNS, err := namespaces.NewRulesNamespace(engine)
	if err != nil {
		return fmt.Errorf("build Rules namespace: %w", err)
	}
	configurationNS, err := namespaces.NewConfigurationNamespace(namespaces.NewConfiguration(cfg.ServerName))
	if err != nil {
		return fmt.Errorf("build Configuration namespace: %w", err)
	}
	rpcCore.RegisterNamespace(jsonrpcNS)
	rpcCore.RegisterNamespace(rulesNS)
	rpcCore.RegisterNamespace(configurationNS)

	coreCfg := core.Config{WorkQueueSize: cfg.WorkQueueSize, TickInterval: cfg.TickInterval}
	wiring := core.New(engine, authService, rpcCore, coreCfg, logger)

	mux := transport.NewMultiplexer()
	tcp := tcpline.New(cfg.TCPAddr, wiring, logger)
	websocket := ws.New(cfg.WSAddr, wiring, logger)
	httpRPC := httpjsonrpc.New(cfg.HTTPAddr, wiring, logger)
	mux.Register(tcp)
	mux.Register(websocket)
	mux.Register(httpRPC)

	var relay *cloudrelay.Transport
	if cfg.CloudRelayEnable && cfg.RabbitMQURL != "" {
		relay = cloudrelay.New(cfg.RabbitMQURL, cfg.CloudRelayQueue, wiring, logger)
		mux.Register(relay)
	}
	wiring.SetSender(mux)

	if err := wiring.Start(ctx); err != nil {
		return fmt.Errorf("start core: %w", err)
	}
	defer wiring.Stop()

	if err := tcp.Start(ctx); err != nil {
		return fmt.Errorf("start tcpline transport: %w", err)
	}
	defer tcp.Stop()

	if err := websocket.Start(ctx); err != nil {
		return fmt.Errorf("start ws transport: %w", err)
	}
	defer websocket.Stop()

	if err := httpRPC.Start(ctx); err != nil {
		return fmt.Errorf("start httpjsonrpc transport: %w", err)
	}
	defer httpRPC.Stop()

	if relay != nil {
		if err := relay.Start(ctx); err != nil {
			return fmt.Errorf("start cloudrelay transport: %w", err)
		}
		defer relay.Stop()
	}

	logger.Info("meridiand ready",
		"tcp", cfg.TCPAddr, "ws", cfg.WSAddr, "http", cfg.HTTPAddr,
		"local_mode", cfg.IsLocalMode(), "cloud_relay", relay != nil)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	dbCfg := dbConfig(cfg)
	if dbCfg.Driver == database.DriverSQLite {
		if err := database.EnsureDirectory(dbCfg.SQLitePath); err != nil {
			return fmt.Errorf("prepare sqlite path: %w", err)
		}
	}
	conn, err := database.NewConnection(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer conn.Close()

	store := authpersistence.NewStore(conn)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("migration complete", "driver", dbCfg.Driver.String())
	return nil
}

func main() {
	root := &cobra.Command{
		Use:   "meridiand",
		Short: "Meridian home automation server",
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the server: rule engine, auth, and every configured transport",
		RunE:  runServe,
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the auth store's schema to the configured database",
		RunE:  runMigrate,
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the protocol version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(protocolVersion)
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
