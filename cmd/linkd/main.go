// linkd keeps a persistent WebSocket link to a configured endpoint and
// journals its lifecycle.
//
// Usage: linkd --config configs/linkd.example.yaml
//
// Signals: SIGUSR1 suspends the link, SIGUSR2 resumes it, SIGINT/SIGTERM
// close it and exit. POST /reconnect on the health port restarts a link
// that has exhausted its retry budget.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/wslink/internal/auth"
	"github.com/rickgao/wslink/internal/config"
	"github.com/rickgao/wslink/internal/connection"
	"github.com/rickgao/wslink/internal/database"
	"github.com/rickgao/wslink/internal/journal"
	"github.com/rickgao/wslink/internal/lifecycle"
	"github.com/rickgao/wslink/internal/reporter"
	"github.com/rickgao/wslink/internal/router"
	"github.com/rickgao/wslink/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/linkd.example.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := run(*configPath); err != nil {
		slog.Error("linkd failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load configuration
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}
	logger = logger.With("instance_id", cfg.Instance.ID)
	slog.SetDefault(logger)

	logger.Info("starting linkd",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
		"endpoint", cfg.Link.Endpoint,
	)

	env := lifecycle.NewOS(logger)
	defer env.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handshake signing
	clientCfg := cfg.Link.ClientConfig()
	if cfg.Auth.KeyID != "" {
		creds, err := auth.LoadCredentials(cfg.Auth.KeyID, cfg.Auth.PrivateKeyPath, cfg.Auth.HeaderPrefix)
		if err != nil {
			return fmt.Errorf("load credentials: %w", err)
		}
		clientCfg.Header = creds.HeaderFunc(cfg.HandshakePath())
		logger.Info("handshake signing enabled", "key_id", creds.KeyID)
	}

	// Inbound routing
	rtr := router.NewRouter(router.DefaultRouterConfig(), logger)
	rtr.Handle("error", func(e router.Envelope) {
		logger.Warn("remote error message", "session", e.Session, "payload", string(e.Data))
	})
	rtr.HandleDefault(func(e router.Envelope) {
		logger.Debug("message", "type", e.Type, "size", len(e.Data), "session", e.Session)
	})

	sub := connection.Subscription{
		OnOpen: func(ev connection.OpenEvent) {
			logger.Info("link open", "session", ev.Session, "attempt", ev.Attempt)
		},
		OnMessage: rtr.OnMessage,
		OnClose: func(ev connection.CloseEvent) {
			logger.Info("link closed", "session", ev.Session, "reason", ev.Reason, "error", ev.Err)
		},
		OnError: func(ev connection.ErrorEvent) {
			if ev.Kind == connection.ErrorExhausted {
				logger.Error("link gave up, POST "+reconnectPath+" on the health port to retry", "error", ev.Err)
			}
		},
	}

	// Optional journal
	var (
		jr        *journal.Journal
		jrStats   journalStatser
		dbChecker pinger
	)
	if cfg.Journal.Enabled {
		logger.Info("connecting to journal database",
			"host", cfg.Journal.Database.Host,
			"port", cfg.Journal.Database.Port,
			"database", cfg.Journal.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			return fmt.Errorf("connect journal database: %w", err)
		}
		defer pool.Close()

		if err := journal.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		jr = journal.New(journal.Config{
			Instance:      cfg.Instance.ID,
			Endpoint:      cfg.Link.Endpoint,
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			BufferSize:    cfg.Journal.BufferSize,
		}, pool, logger)
		if err := jr.Start(ctx); err != nil {
			return fmt.Errorf("start journal: %w", err)
		}
		sub = jr.Observe(sub)
		jrStats, dbChecker = jr, pool
	}

	mgr, err := connection.NewManager(
		cfg.Link.ManagerConfig(),
		connection.NewDialer(clientCfg, logger),
		sub,
		connection.WithLogger(logger),
		connection.WithEnvironment(env),
	)
	if err != nil {
		return fmt.Errorf("create connection manager: %w", err)
	}

	if err := rtr.Start(ctx); err != nil {
		return fmt.Errorf("start router: %w", err)
	}

	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           newHealthHandler(cfg.Health.Path, mgr, rtr, jrStats, dbChecker),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Health.Port, "path", cfg.Health.Path)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-env.Done():
		case <-gctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return healthServer.Shutdown(shutdownCtx)
	})

	rep := reporter.New(reporter.Config{Interval: cfg.Log.StatsInterval}, logger)
	rep.Add("link", func() []any {
		st := mgr.Stats()
		return []any{"state", st.State.String(), "attempt", st.Attempt, "opens", st.Opens, "failures", st.Failures, "messages", st.Messages}
	})
	rep.Add("router", func() []any {
		st := rtr.Stats()
		return []any{"routed", st.MessagesRouted, "unknown", st.UnknownMessages, "pending", st.Mailbox.Pending}
	})
	if jr != nil {
		rep.Add("journal", func() []any {
			st := jr.Stats()
			return []any{"inserts", st.Inserts, "dropped", st.Dropped, "errors", st.Errors}
		})
	}
	if err := rep.Start(ctx); err != nil {
		return fmt.Errorf("start reporter: %w", err)
	}

	mgr.Start()
	logger.Info("linkd running", "health_url", fmt.Sprintf("http://localhost:%d%s", cfg.Health.Port, cfg.Health.Path))

	runErr := g.Wait()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	rep.Stop(shutdownCtx)
	mgr.Close()
	select {
	case <-mgr.Done():
	case <-shutdownCtx.Done():
		logger.Warn("link callbacks still pending at shutdown")
	}
	if err := rtr.Stop(shutdownCtx); err != nil {
		logger.Warn("router stop", "error", err)
	}
	if jr != nil {
		if err := jr.Stop(shutdownCtx); err != nil {
			logger.Warn("journal stop", "error", err)
		}
	}

	logger.Info("linkd stopped")
	return runErr
}
