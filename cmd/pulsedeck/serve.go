package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/HerbHall/pulsedeck/api/swagger"
	"github.com/HerbHall/pulsedeck/internal/auth"
	"github.com/HerbHall/pulsedeck/internal/bridge"
	"github.com/HerbHall/pulsedeck/internal/config"
	"github.com/HerbHall/pulsedeck/internal/credential"
	"github.com/HerbHall/pulsedeck/internal/driver"
	"github.com/HerbHall/pulsedeck/internal/event"
	"github.com/HerbHall/pulsedeck/internal/monitor"
	"github.com/HerbHall/pulsedeck/internal/notify"
	"github.com/HerbHall/pulsedeck/internal/server"
	"github.com/HerbHall/pulsedeck/internal/store"
	"github.com/HerbHall/pulsedeck/internal/stream"
	"github.com/HerbHall/pulsedeck/internal/version"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the PulseDeck server",
	RunE:  runServe,
}

// settings holds every component section decoded from configuration.
type settings struct {
	server server.Config
	auth   auth.Config
	mon    monitor.Config
	stream stream.Config
	notify notify.Config
	bridge bridge.Config
	slow   time.Duration
}

func loadSettings(v *viper.Viper) (settings, error) {
	s := settings{
		server: server.DefaultConfig(),
		auth:   auth.DefaultConfig(),
		mon:    monitor.DefaultConfig(),
		stream: stream.DefaultConfig(),
		notify: notify.DefaultConfig(),
		bridge: bridge.DefaultConfig(),
		slow:   v.GetDuration("monitor.slow_handler_threshold"),
	}
	sections := []struct {
		key    string
		target any
	}{
		{"server", &s.server},
		{"auth", &s.auth},
		{"monitor", &s.mon},
		{"stream", &s.stream},
		{"notify", &s.notify},
		{"bridge.nats", &s.bridge},
	}
	for _, sec := range sections {
		if err := config.Section(v, sec.key, sec.target); err != nil {
			return settings{}, err
		}
	}
	return s, nil
}

func newCipher(v *viper.Viper) (*credential.Cipher, error) {
	c, err := credential.New(v.GetString("credentials.passphrase"), []byte(v.GetString("credentials.salt")))
	if err != nil {
		return nil, fmt.Errorf("credential cipher: %w", err)
	}
	return c, nil
}

func runServe(_ *cobra.Command, _ []string) error {
	// Load configuration (before logger, so log level/format can be configured).
	v, err := server.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, level, err := config.NewLogger(v)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("PulseDeck server starting", zap.String("version", version.Short()))

	if f := v.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
		config.WatchLogLevel(v, level, logger.Named("config"))
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	cfg, err := loadSettings(v)
	if err != nil {
		return err
	}

	cipher, err := newCipher(v)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open database
	dbPath := v.GetString("database.path")
	if dbPath == "" {
		dbPath = "pulsedeck.db"
	}
	db, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.CheckVersion(ctx, version.Short()); err != nil {
		return err
	}
	for _, c := range []struct {
		name       string
		migrations []store.Migration
	}{
		{"monitor", monitor.Migrations()},
		{"notify", notify.Migrations()},
	} {
		if err := db.Migrate(ctx, c.name, c.migrations); err != nil {
			return fmt.Errorf("migrate %s: %w", c.name, err)
		}
	}
	logger.Info("database initialized",
		zap.String("component", "database"),
		zap.String("path", dbPath),
	)

	monitorStore := monitor.NewStore(db.DB())
	notifyStore := notify.NewStore(db.DB())

	if cfg.notify.SeedTemplates {
		n, err := notifyStore.SeedTemplates(ctx)
		if err != nil {
			return fmt.Errorf("seed notification templates: %w", err)
		}
		if n > 0 {
			logger.Info("seeded notification templates", zap.String("component", "notify"), zap.Int("count", n))
		}
	}

	// Metrics pipeline: poller -> bus -> {stream, notify, bridge}.
	bus := event.NewBus(logger.Named("event"), cfg.slow)
	drivers := driver.NewFactory(driver.WithTimeout(cfg.mon.RequestTimeout))
	poller := monitor.NewPoller(monitorStore, cipher, drivers, bus, cfg.mon, logger.Named("monitor"))

	broadcaster := stream.NewBroadcaster(poller, logger.Named("stream"))
	bus.Subscribe("stream", broadcaster.HandleSnapshot)

	dispatcher := notify.NewDispatcher(notifyStore, cfg.notify, &http.Client{Timeout: cfg.notify.DispatchTimeout}, logger.Named("dispatch"))
	evaluator := notify.NewEvaluator(notifyStore, monitorStore, dispatcher, cfg.notify, logger.Named("notify"))
	evaluator.Start()
	bus.Subscribe("notify", evaluator.HandleSnapshot)

	var nc *nats.Conn
	if cfg.bridge.Enabled() {
		nc, err = bridge.Connect(cfg.bridge, logger.Named("bridge"))
		if err != nil {
			logger.Warn("NATS bridge disabled", zap.String("component", "bridge"), zap.Error(err))
		} else {
			b := bridge.New(nc, cfg.bridge.Subject, logger.Named("bridge"))
			bus.Subscribe("bridge", b.HandleSnapshot)
			logger.Info("NATS bridge connected",
				zap.String("component", "bridge"),
				zap.String("subject", cfg.bridge.Subject),
			)
		}
	}

	secret := []byte(cfg.auth.JWTSecret)
	if len(secret) == 0 {
		secret, err = auth.EphemeralSecret()
		if err != nil {
			return err
		}
		logger.Warn("using auto-generated JWT secret; set auth.jwt_secret to mint tokens with `pulsedeck token`",
			zap.String("component", "auth"),
		)
	}
	tokens, err := auth.NewTokenService(secret, cfg.auth.AccessTokenTTL)
	if err != nil {
		return err
	}

	readyCheck := server.ReadinessChecker(func(ctx context.Context) error {
		return db.Ping(ctx)
	})
	srv := server.New(cfg.server, logger, readyCheck, auth.RequireAuth(tokens),
		monitor.NewHandler(monitorStore, poller, cipher, logger.Named("monitor")),
		stream.NewHandler(broadcaster, cfg.stream, logger.Named("stream")),
		notify.NewHandler(notifyStore, dispatcher, evaluator, monitorStore, logger.Named("notify")),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("PulseDeck server ready", zap.String("addr", cfg.server.Addr()))

	// Wait for shutdown signal or a listener failure.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		logger.Error("server error", zap.Error(runErr))
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	broadcaster.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", zap.Error(err))
	}
	poller.Stop()
	poller.Wait()
	evaluator.Stop()
	if nc != nil {
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
	}

	logger.Info("PulseDeck server stopped")
	return runErr
}
