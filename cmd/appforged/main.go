package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/appforge-ai/appforge/internal/config"
	"github.com/appforge-ai/appforge/internal/eventbus"
	"github.com/appforge-ai/appforge/internal/model"
	"github.com/appforge-ai/appforge/internal/notify"
	"github.com/appforge-ai/appforge/internal/orchestrator"
	"github.com/appforge-ai/appforge/internal/pipeline"
	"github.com/appforge-ai/appforge/internal/presets"
	"github.com/appforge-ai/appforge/internal/router"
	"github.com/appforge-ai/appforge/internal/scheduler"
	"github.com/appforge-ai/appforge/internal/search"
	"github.com/appforge-ai/appforge/internal/skills"
	"github.com/appforge-ai/appforge/internal/store"
	"github.com/appforge-ai/appforge/internal/vault"
	"github.com/appforge-ai/appforge/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("appforged %s\n", version)
	case "gateway":
		err = runGateway()
	case "backup":
		err = runBackup(os.Args[2:])
	case "restore":
		err = runRestore(os.Args[2:])
	case "vault":
		err = runVault(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		slog.Error(os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: appforged <command>

Commands:
  gateway    Start the AppForge gateway service
  backup     Archive the data directory to a tar.zst snapshot
  restore    Restore a tar.zst snapshot into the data directory
  vault      Manage encrypted provider secrets
  version    Print version
`)
}

func runGateway() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting appforge gateway", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Secrets vault; provider keys absent from config fall back to it.
	var v *vault.Vault
	if cfg.Vault.Passphrase != "" {
		v = vault.New(cfg.Vault.Passphrase)
		resolveProviderKeys(db, v, cfg)
	} else {
		slog.Warn("vault passphrase not set, secrets disabled")
	}

	// Embedded NATS
	bus, err := eventbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()
	slog.Info("nats started", "port", bus.Port())

	events, err := eventbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("init nats client: %w", err)
	}
	defer events.Close()

	// Model gateway
	client := model.NewRetryClient(model.NewHTTPClient(cfg.Model), cfg.Model)

	// Skill cache
	var skillSvc *skills.Service
	embedder := skills.NewHTTPEmbedder(cfg.Embeddings)
	index, err := skills.NewIndex(cfg.Skills.DataDir, embedder)
	if err != nil {
		return fmt.Errorf("init skill index: %w", err)
	}
	skillSvc = skills.NewService(db, index, embedder, cfg.Skills, slog.Default())
	slog.Info("skill cache ready", "indexed", index.Count())

	// Web search for agents carrying the search capability
	var searcher pipeline.Searcher
	if cfg.Search.APIKey != "" {
		searcher = search.New(cfg.Search)
	} else {
		slog.Warn("search api key not set, search capability disabled")
	}

	// Telegram notifications
	var notifier orchestrator.Notifier
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegram(cfg.Telegram, slog.Default())
		if err != nil {
			return fmt.Errorf("init telegram: %w", err)
		}
		notifier = tg
		slog.Info("telegram notifications enabled")
	}

	orch := orchestrator.New(db, skillSvc, client, searcher, events, notifier, cfg.Pipeline, slog.Default())

	// Config-declared swarm presets
	presetReg := presets.New(db, cfg.Presets)
	if err := presetReg.Sync(); err != nil {
		return fmt.Errorf("sync presets: %w", err)
	}
	rtr := router.New(presetReg, client, cfg.Router)

	// Scheduled missions
	sched := scheduler.New(db, orch, events, cfg.Scheduler)
	go sched.Start(ctx)
	slog.Info("scheduler started")

	// Web API
	if cfg.Web.Enabled {
		srv := web.NewServer(db, bus, orch, skillSvc, cfg.Web, v, version)
		srv.SetRouter(rtr, presetReg)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()
	return nil
}

// resolveProviderKeys fills empty provider credentials from the vault so
// API keys never have to live in the config file.
func resolveProviderKeys(db *store.Store, v *vault.Vault, cfg *config.Config) {
	lookup := func(name string) string {
		sec, err := db.GetSecretByName(name)
		if err != nil || sec == nil {
			return ""
		}
		plaintext, err := v.Open(sec.Value, sec.Nonce)
		if err != nil {
			slog.Warn("secret decrypt failed", "name", name, "error", err)
			return ""
		}
		return string(plaintext)
	}

	if cfg.Model.APIKey == "" {
		if key := lookup("MODEL_API_KEY"); key != "" {
			cfg.Model.APIKey = key
			slog.Info("model api key loaded from vault")
		}
	}
	if cfg.Embeddings.APIKey == "" {
		if key := lookup("EMBEDDINGS_API_KEY"); key != "" {
			cfg.Embeddings.APIKey = key
			slog.Info("embeddings api key loaded from vault")
		}
	}
	if cfg.Search.APIKey == "" {
		if key := lookup("SEARCH_API_KEY"); key != "" {
			cfg.Search.APIKey = key
			slog.Info("search api key loaded from vault")
		}
	}
}
