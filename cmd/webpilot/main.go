package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/webpilot/agent"
	"github.com/use-agent/webpilot/api"
	"github.com/use-agent/webpilot/api/handler"
	"github.com/use-agent/webpilot/cache"
	"github.com/use-agent/webpilot/config"
	"github.com/use-agent/webpilot/driver"
	"github.com/use-agent/webpilot/engine"
	"github.com/use-agent/webpilot/llm"
	"github.com/use-agent/webpilot/models"
	"github.com/use-agent/webpilot/retriever"
	"github.com/use-agent/webpilot/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("webpilot starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxSessions", cfg.Session.MaxSessions,
	)

	// ── 3. Launch the shared browser ────────────────────────────────
	browser, err := driver.NewBrowser(cfg.Browser)
	if err != nil {
		slog.Error("failed to launch browser", "error", err)
		os.Exit(1)
	}
	defer browser.Close()

	manager := driver.NewManager(browser, cfg.Session, cfg.Browser, cfg.Engine.StepTimeout)
	defer manager.Shutdown()

	// ── 4. LLM client and retriever ─────────────────────────────────
	client, err := llm.New(cfg.LLM)
	if err != nil {
		slog.Error("failed to initialise LLM client", "error", err)
		os.Exit(1)
	}

	var embedder llm.Embedder
	if cfg.Retriever.Kind == "" || cfg.Retriever.Kind == "embedding" {
		embedder, err = llm.NewEmbedder(cfg.LLM)
		if err != nil {
			slog.Error("failed to initialise embedder", "error", err)
			os.Exit(1)
		}
	}

	vectors := cache.New(cfg.Cache.MaxEntries)
	retr, err := retriever.New(cfg.Retriever, embedder, vectors)
	if err != nil {
		slog.Error("failed to initialise retriever", "error", err)
		os.Exit(1)
	}
	slog.Info("retriever ready", "kind", retr.Name(), "model", client.ModelName())

	// ── 4b. Page loader for sessionless extraction ──────────────────
	fetcher := driver.NewStaticFetcher(cfg.Browser.Proxy)
	memory := driver.NewRenderMemory(24 * time.Hour)
	defer memory.Stop()
	loader := driver.NewLoader(fetcher, manager, memory)

	// ── 4c. Webhook notifier ────────────────────────────────────────
	notifier := webhook.NewNotifier(cfg.Webhook)

	// ── 5. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	engineDeps := engine.Deps{LLM: client, Retriever: retr, Config: cfg.Engine}
	deps := handler.Deps{
		Sessions: managerSessions{m: manager},
		Engines: func(drv driver.Driver) *engine.Set {
			return engine.NewSet(drv, engineDeps)
		},
		Agents: func(drv driver.Driver, maxSteps int) *agent.Agent {
			agentCfg := cfg.Agent
			if maxSteps > 0 {
				agentCfg.MaxSteps = maxSteps
			}
			set := engine.NewSet(drv, engineDeps)
			return agent.New(drv, set.Dispatcher, agent.NewPlanner(client), agentCfg)
		},
		Loader:   loader,
		Answer:   engine.NewAnswerer(client, retr).Answer,
		Webhooks: notifier,
		Config:   cfg,
		Start:    startTime,
	}
	router := api.NewRouter(deps)

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// manager.Shutdown and browser.Close run via defer, closing every live
	// session and killing Chrome.
	slog.Info("webpilot stopped")
}

// managerSessions adapts the concrete session manager to the handler
// interfaces. The indirection keeps the error path from smuggling a typed
// nil *driver.Session into a non-nil handler.Session.
type managerSessions struct {
	m *driver.Manager
}

func (ms managerSessions) Create(ctx context.Context, startURL string, stealth *bool) (handler.Session, error) {
	sess, err := ms.m.Create(ctx, startURL, stealth)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (ms managerSessions) Get(id string) (handler.Session, bool) {
	sess, ok := ms.m.Get(id)
	if !ok {
		return nil, false
	}
	return sess, true
}

func (ms managerSessions) Close(id string) error {
	return ms.m.Close(id)
}

func (ms managerSessions) List(ctx context.Context) []models.SessionInfo {
	return ms.m.List(ctx)
}

func (ms managerSessions) Stats() models.SessionStats {
	return ms.m.Stats()
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(h))
}
