// linkcat connects to a WebSocket endpoint and streams messages to the console.
// Usage: go run ./cmd/linkcat --url wss://stream.example.com/ws
//
//	go run ./cmd/linkcat --config configs/linkd.example.yaml --verbose
//
// The link follows the same suspend/resume signals as linkd.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rickgao/wslink/internal/auth"
	"github.com/rickgao/wslink/internal/config"
	"github.com/rickgao/wslink/internal/connection"
	"github.com/rickgao/wslink/internal/lifecycle"
	"github.com/rickgao/wslink/internal/reporter"
	"github.com/rickgao/wslink/internal/router"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	endpoint := flag.String("url", "", "endpoint to connect to, overrides config")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := loadConfig(*configPath, *endpoint)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	env := lifecycle.NewOS(logger)
	defer env.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientCfg := cfg.Link.ClientConfig()
	if cfg.Auth.KeyID != "" {
		creds, err := auth.LoadCredentials(cfg.Auth.KeyID, cfg.Auth.PrivateKeyPath, cfg.Auth.HeaderPrefix)
		if err != nil {
			logger.Error("failed to load credentials", "error", err)
			os.Exit(1)
		}
		clientCfg.Header = creds.HeaderFunc(cfg.HandshakePath())
		logger.Info("using credentials", "key_id", creds.KeyID)
	}

	rtr := router.NewRouter(router.RouterConfig{BufferSize: 1000, BatchSize: 100}, logger)
	p := &printer{out: os.Stdout, verbose: *verbose}
	rtr.HandleDefault(p.print)

	mgr, err := connection.NewManager(cfg.Link.ManagerConfig(), connection.NewDialer(clientCfg, logger), connection.Subscription{
		OnOpen: func(ev connection.OpenEvent) {
			logger.Info("connected", "endpoint", ev.Endpoint, "session", ev.Session, "attempt", ev.Attempt)
		},
		OnMessage: rtr.OnMessage,
		OnClose: func(ev connection.CloseEvent) {
			logger.Info("disconnected", "reason", ev.Reason, "error", ev.Err)
		},
		OnError: func(ev connection.ErrorEvent) {
			logger.Warn("link error", "kind", ev.Kind, "attempt", ev.Attempt, "error", ev.Err)
			if ev.Kind == connection.ErrorExhausted {
				cancel()
			}
		},
	}, connection.WithLogger(logger), connection.WithEnvironment(env))
	if err != nil {
		logger.Error("failed to create connection manager", "error", err)
		os.Exit(1)
	}

	if err := rtr.Start(ctx); err != nil {
		logger.Error("failed to start router", "error", err)
		os.Exit(1)
	}
	mgr.Start()

	rep := reporter.New(reporter.DefaultConfig(), logger)
	rep.Add("link", func() []any {
		st := mgr.Stats()
		return []any{"state", st.State.String(), "dials", st.Dials, "opens", st.Opens, "messages", st.Messages}
	})
	rep.Add("router", func() []any {
		st := rtr.Stats()
		return []any{"routed", st.MessagesRouted, "parse_errors", st.ParseErrors, "pending", st.Mailbox.Pending}
	})
	rep.Start(ctx)

	logger.Info("streaming started - press Ctrl+C to stop")

	select {
	case <-env.Done():
		logger.Info("received shutdown signal")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	rep.Stop(shutdownCtx)
	mgr.Close()
	rtr.Stop(shutdownCtx)

	logger.Info("shutdown complete", "printed", p.count)
}

// loadConfig resolves settings from an optional config file and URL flag.
func loadConfig(path, endpoint string) (*config.LinkdConfig, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.LoadWithDefaults(path)
		if err != nil {
			return nil, err
		}
	}
	if endpoint != "" {
		cfg.Link.Endpoint = endpoint
	}
	if cfg.Link.Endpoint == "" {
		return nil, fmt.Errorf("no endpoint: pass --url or --config")
	}
	return cfg, nil
}

type printer struct {
	out     io.Writer
	verbose bool
	count   int64
}

// print runs on the router goroutine only.
func (p *printer) print(env router.Envelope) {
	p.count++
	if p.verbose {
		var buf bytes.Buffer
		if err := json.Indent(&buf, env.Data, "", "  "); err == nil {
			fmt.Fprintf(p.out, "[%s] %s\n", env.Type, buf.Bytes())
			return
		}
	}
	fmt.Fprintf(p.out, "[%s] %d bytes at %s\n", env.Type, len(env.Data), env.ReceivedAt.Format(time.RFC3339Nano))
}
