package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/resonancehq/resonance/internal/agent"
	"github.com/resonancehq/resonance/internal/bridge"
	"github.com/resonancehq/resonance/internal/bus"
	"github.com/resonancehq/resonance/internal/config"
	"github.com/resonancehq/resonance/internal/gateway"
	httpapi "github.com/resonancehq/resonance/internal/http"
	"github.com/resonancehq/resonance/internal/memory"
	"github.com/resonancehq/resonance/internal/notify"
	"github.com/resonancehq/resonance/internal/sentinel"
	"github.com/resonancehq/resonance/internal/skills"
	"github.com/resonancehq/resonance/internal/tools"
	"github.com/resonancehq/resonance/internal/tracing"
	"github.com/resonancehq/resonance/internal/transcript"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the host (WebSocket stream + REST API on localhost)",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	setupLogging()

	cfg, err := config.Open(resolveDataDir())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	snap := cfg.Snapshot()

	// First run: no profile on disk and no key in the environment means
	// the host cannot reach any LLM. Redirect to the setup wizard.
	if _, prof := snap.ActiveProfile(); prof.APIKey == "" && len(snap.Profiles) == 0 {
		fmt.Println("No LLM profile configured. Starting setup wizard...")
		fmt.Println()
		if !runOnboard() {
			os.Exit(1)
		}
		cfg, err = config.Open(resolveDataDir())
		if err != nil {
			slog.Error("failed to reload config", "error", err)
			os.Exit(1)
		}
		snap = cfg.Snapshot()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing is optional; a broken exporter must not keep the host down.
	shutdownTracing, err := tracing.Setup(ctx, snap.Config.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				slog.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	// Legacy scripts run with the workspace as their default cwd.
	os.MkdirAll(snap.WorkspaceDir(), 0o755)

	transcripts, err := transcript.NewStore(snap.SessionsDir())
	if err != nil {
		slog.Error("failed to open session store", "error", err)
		os.Exit(1)
	}

	// The embedder borrows the active profile's credentials so one key
	// covers both chat and retrieval.
	_, prof := snap.ActiveProfile()
	mem, err := memory.Open(snap.VectorStoreDir(), memory.NewOpenAIEmbedder(memory.EmbedderConfig{
		APIKey:  prof.APIKey,
		BaseURL: prof.BaseURL,
		Model:   snap.Config.System.Memory.EmbeddingModel,
	}))
	if err != nil {
		slog.Error("failed to open memory store", "error", err)
		os.Exit(1)
	}
	if err := mem.SeedIfEmpty(ctx); err != nil {
		slog.Warn("memory seed failed", "error", err)
	}

	skillsReg, err := skills.NewRegistry(snap.SkillsDir())
	if err != nil {
		slog.Error("failed to open skill registry", "error", err)
		os.Exit(1)
	}
	if err := skills.MigrateLegacyScripts(cfg, skillsReg); err != nil {
		slog.Warn("legacy script migration failed", "error", err)
	}
	// Skill directory watcher — external edits to SKILLS/ re-scan at runtime.
	if err := skillsReg.Watch(ctx); err != nil {
		slog.Warn("skills watcher unavailable", "error", err)
	}

	hotkeys := sentinel.NewChannelListener()
	engine := sentinel.New(snap.SentinelsPath(), hotkeys)

	toolsReg := tools.NewRegistry(skillsReg)
	toolsReg.Register(tools.NewShellTool())
	toolsReg.Register(tools.NewBrowseURLTool())
	toolsReg.Register(tools.NewListDirectoryTool())
	toolsReg.Register(tools.NewSearchFilesTool())
	toolsReg.Register(tools.NewReadFileTool())
	toolsReg.Register(tools.NewRememberFactTool(cfg))
	toolsReg.Register(tools.NewManageSkillsTool(skillsReg))
	toolsReg.Register(tools.NewLearnSkillTool(skillsReg))
	toolsReg.Register(tools.NewLegacyScriptTool(cfg))
	toolsReg.Register(tools.NewAddTimeSentinelTool(engine))
	toolsReg.Register(tools.NewAddFileSentinelTool(engine))
	toolsReg.Register(tools.NewAddBehaviorSentinelTool(engine))
	toolsReg.Register(tools.NewListSentinelsTool(engine))
	toolsReg.Register(tools.NewRemoveSentinelTool(engine))

	host := agent.New(agent.Config{
		Config:      cfg,
		Transcripts: transcripts,
		Memory:      mem,
		Skills:      skillsReg,
		Tools:       toolsReg,
	})

	eventBus := bus.New()
	br := bridge.New(bridge.Config{
		Host:       host,
		Bus:        eventBus,
		Notifier:   notify.Desktop(),
		MaxWorkers: snap.Config.System.MaxWorkers,
	})

	// Sentinel triggers become autonomous turns on the main session.
	engine.SetCallback(br.OnSentinelTrigger)
	if err := engine.Start(); err != nil {
		slog.Warn("sentinel engine start failed", "error", err)
	}

	server := gateway.NewServer(snap.Config.Server, eventBus, br,
		httpapi.NewSessionsHandler(transcripts, br),
		httpapi.NewMemoryHandler(mem),
		httpapi.NewConfigHandler(cfg),
		httpapi.NewSkillsHandler(skillsReg, cfg),
		httpapi.NewSentinelsHandler(engine, hotkeys),
		httpapi.NewSystemHandler(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)
		engine.Stop()
		cancel()
	}()

	slog.Info("resonance host starting",
		"version", Version,
		"data", cfg.Root(),
		"addr", server.Addr(),
		"tools", len(toolsReg.Names()),
		"skills", len(skillsReg.List()),
		"memories", mem.Count(),
	)

	if err := server.Start(ctx); err != nil {
		slog.Error("gateway error", "error", err)
		os.Exit(1)
	}

	// Listener is down; finish what is already running before exiting.
	br.Close()
	host.Drain()
}
