package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/gatewaycore/internal/backend"
	"github.com/nextlevelbuilder/gatewaycore/internal/bus"
	"github.com/nextlevelbuilder/gatewaycore/internal/config"
	"github.com/nextlevelbuilder/gatewaycore/internal/gatewayclient"
	"github.com/nextlevelbuilder/gatewaycore/internal/interaction"
	"github.com/nextlevelbuilder/gatewaycore/internal/runner"
	"github.com/nextlevelbuilder/gatewaycore/internal/sessions"
	"github.com/nextlevelbuilder/gatewaycore/internal/subagent"
	"github.com/nextlevelbuilder/gatewaycore/pkg/protocol"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration core",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

// runServe wires the orchestration core's collaborators together and runs
// until a SIGINT/SIGTERM, mirroring the teacher's gateway.go: a
// context.WithCancel tied to a signal channel, with shutdown broadcast over
// the event bus before the process collects its goroutines. Unlike the
// teacher's channel/cron/heartbeat bundle, this core's only long-running
// services are the config watcher and the subagent reservation GC loop.
func runServe() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	hub := bus.NewHub()
	sessionsMgr := sessions.NewManager(config.ExpandHome(cfg.Sessions.Storage))
	registry := subagent.NewRegistry(config.ExpandHome(cfg.Sessions.RegistryPath))

	onHeartbeat := func(sessionKey string) {
		slog.Debug("subagent heartbeat", "sessionKey", sessionKey)
	}
	subagentMgr := subagent.NewManager(subagent.Config{
		MaxConcurrent:     cfg.Subagents.MaxConcurrent,
		MaxRetained:       cfg.Subagents.MaxRetained,
		ReservationTTLSec: cfg.Subagents.ReservationTTLSec,
	}, hub, registry, onHeartbeat)
	defer subagentMgr.Close()

	interactionMgr := interaction.NewManager(interaction.DefaultTTL)

	var gwClient *gatewayclient.Client
	if cfg.Gateway.URL != "" {
		dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
		gwClient, err = gatewayclient.Dial(dialCtx, cfg.Gateway.URL, cfg.Gateway.Token)
		dialCancel()
		if err != nil {
			slog.Warn("gateway connect failed, announce flow will run degraded", "url", cfg.Gateway.URL, "error", err)
		} else {
			defer gwClient.Close()
		}
	}

	queue := backend.NewQueue()
	queue.RatePerSec = cfg.Queue.RatePerSec
	queue.Burst = cfg.Queue.Burst

	run := &runner.Runner{
		Config:         cfg,
		Queue:          queue,
		Subagents:      subagentMgr,
		Sessions:       sessionsMgr,
		Interactions:   interactionMgr,
		Publisher:      hub,
		DefaultBackend: defaultBackendID(cfg),
		AnnounceDeps: subagent.AnnounceDeps{
			ReadTranscript: sessions.ReadLatestAssistantReply,
			TranscriptPath: func(childSessionKey string) string {
				return sessionTranscriptPath(cfg, childSessionKey)
			},
		},
		AnnounceTimeoutMs: 60000,
	}
	if gwClient != nil {
		run.AnnounceDeps.Gateway = gwClient
	}

	// tools backs the sessions_* tool surface (§6): runner.runOne dispatches
	// a run's tool_use events into it and resumes the CLI with the result.
	// Registering these as JSON-schema tool definitions advertised to the
	// backend CLI (BackendSpec.EnableTools) is the backend's own concern,
	// out of scope here.
	adapter := run.NewSessionAdapter()
	run.Tools = &subagent.Tools{
		Manager: subagentMgr,
		Spawner: run,
		Lister:  adapter,
		Sender:  adapter,
		History: adapter,
	}

	watcher, err := config.NewWatcher(cfgPath, cfg, func(next *config.Config) {
		slog.Info("config reloaded", "path", cfgPath)
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
	} else {
		defer watcher.Close()
	}

	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)
		hub.Broadcast(bus.Event{Name: protocol.EventShutdown})
		cancel()
	}()

	slog.Info("gatewaycore starting",
		"version", Version,
		"protocol", protocol.ProtocolVersion,
		"backends", cfg.BackendIDs(),
	)

	<-ctx.Done()
	slog.Info("gatewaycore stopped")
}

// defaultBackendID picks the first configured backend in deterministic
// (sorted) order when the caller doesn't pin one. Subagents run on a single
// backend per core (§4.7); the choice of which is a deploy-time config
// matter, not a per-run one.
func defaultBackendID(cfg *config.Config) string {
	ids := cfg.BackendIDs()
	if len(ids) == 0 {
		return ""
	}
	best := ids[0]
	for _, id := range ids[1:] {
		if id < best {
			best = id
		}
	}
	return best
}

func sessionTranscriptPath(cfg *config.Config, sessionKey string) string {
	safe := make([]byte, 0, len(sessionKey))
	for i := 0; i < len(sessionKey); i++ {
		if c := sessionKey[i]; c == ':' {
			safe = append(safe, '_')
		} else {
			safe = append(safe, c)
		}
	}
	return filepath.Join(config.ExpandHome(cfg.Sessions.Storage), string(safe)+".jsonl")
}
