package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/adjutant-ai/adjutant/internal/approval"
	"github.com/adjutant-ai/adjutant/internal/capability"
	"github.com/adjutant-ai/adjutant/internal/capability/builtin"
	"github.com/adjutant-ai/adjutant/internal/channels"
	"github.com/adjutant-ai/adjutant/internal/config"
	"github.com/adjutant-ai/adjutant/internal/memory"
	"github.com/adjutant-ai/adjutant/internal/observability"
	"github.com/adjutant-ai/adjutant/internal/provider"
	"github.com/adjutant-ai/adjutant/internal/runtime"
	"github.com/adjutant-ai/adjutant/internal/sessions"
	"github.com/adjutant-ai/adjutant/internal/skills"
	"github.com/adjutant-ai/adjutant/pkg/models"
)

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent daemon",
		Long: `Start the daemon: load configuration, open storage, register
capabilities and skills, start channel adapters, and run the agent loop
until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if debug {
				cfg.Log.Level = "debug"
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")
	cmd.Flags().BoolVar(&debug, "debug", false, "force debug logging")
	return cmd
}

func buildCheckConfigCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate a configuration file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(configPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration ok")
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")
	cmd.MarkFlagRequired("config")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(cfg.Log)
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	var (
		store         sessions.Store
		approvalStore approval.Store
	)
	switch cfg.Storage.Backend {
	case "sqlite":
		sqliteStore, err := sessions.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer sqliteStore.Close()
		approvals, err := approval.NewSQLiteStore(sqliteStore.DB())
		if err != nil {
			return err
		}
		store, approvalStore = sqliteStore, approvals
	case "memory":
		store, approvalStore = sessions.NewMemoryStore(), approval.NewMemoryStore()
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	adapters := channels.NewRegistry()
	if cfg.Channels.Console {
		if err := adapters.Register(channels.NewConsoleAdapter(os.Stdin, os.Stdout)); err != nil {
			return err
		}
	}
	if len(adapters.All()) == 0 {
		return fmt.Errorf("no channel adapters enabled")
	}

	notes := memory.NewNoteStore(cfg.Memory.SnippetLimit)
	retriever := memory.NewBestEffort(notes, logger)

	registry := capability.NewRegistry()
	if err := builtin.RegisterAll(registry, notes); err != nil {
		return err
	}
	if cfg.Skills.Dir != "" {
		n, err := skills.Register(ctx, registry, cfg.Skills.Dir, logger)
		if err != nil {
			return err
		}
		logger.Info(ctx, "skills registered", "count", n, "dir", cfg.Skills.Dir)
	}
	dispatcher := capability.NewDispatcher(registry, logger, metrics, 0)

	inspectors := []approval.Inspector{}
	if len(cfg.Approval.AllowedRoots) > 0 {
		inspectors = append(inspectors, approval.PathInspector(cfg.Approval.AllowedRoots...))
	}
	policy := approval.NewPolicy(approval.PolicyConfig{
		Sensitive:   cfg.Approval.Sensitive,
		Safe:        cfg.Approval.Safe,
		DefaultRisk: models.Risk(cfg.Approval.DefaultRisk),
	}, inspectors...)

	var gateway provider.Gateway
	switch cfg.Provider.Backend {
	case "echo":
		gateway = provider.NewEchoGateway()
	default:
		return fmt.Errorf("unknown provider backend %q", cfg.Provider.Backend)
	}

	surface := approvalSurface(adapters, logger)
	gate := approval.NewGate(approvalStore, surface, logger, metrics, cfg.Approval.TTL)

	rt := runtime.New(runtime.Deps{
		Store:      store,
		Gateway:    gateway,
		Registry:   registry,
		Dispatcher: dispatcher,
		Policy:     policy,
		Gate:       gate,
		Retriever:  retriever,
		Adapters:   adapters,
		Logger:     logger,
		Metrics:    metrics,
	}, runtime.Options{
		MaxIterations:              cfg.Runtime.MaxIterations,
		MaxConsecutiveToolFailures: cfg.Runtime.MaxConsecutiveToolFailures,
		HistoryLimit:               cfg.Runtime.HistoryLimit,
		QueueSize:                  cfg.Runtime.QueueSize,
		DedupeTTL:                  cfg.Runtime.DedupeTTL,
		SystemPrompt:               cfg.Runtime.SystemPrompt,
	})

	inbox := channels.NewInbox(cfg.Inbox.Capacity)
	if err := adapters.StartAll(ctx, inbox); err != nil {
		return err
	}
	logger.Info(ctx, "daemon started",
		"storage", cfg.Storage.Backend, "capabilities", len(registry.List()))

	runErr := rt.Run(ctx, inbox)

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := adapters.StopAll(stopCtx); err != nil {
		logger.Warn(stopCtx, "adapter shutdown", "error", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	logger.Info(context.Background(), "daemon stopped")
	return nil
}

// approvalSurface delivers approval prompts through the conversation's
// own channel adapter.
func approvalSurface(adapters *channels.Registry, logger *observability.Logger) approval.Surface {
	return approval.SurfaceFunc(func(ctx context.Context, req *models.ApprovalRequest) error {
		for _, adapter := range adapters.All() {
			event := &models.Event{
				Channel:        adapter.Type(),
				ConversationID: req.ConversationID,
				Direction:      models.DirectionOutbound,
				Content: fmt.Sprintf("Approval needed for %s (%s). Reply 'approve %s' or 'deny %s'.",
					req.ToolName, req.Reason, req.ToolCallID, req.ToolCallID),
				CreatedAt: time.Now(),
			}
			if err := adapter.Send(ctx, event); err != nil {
				logger.Warn(ctx, "approval prompt delivery failed",
					"channel", adapter.Type(), "error", err)
			}
		}
		return nil
	})
}
