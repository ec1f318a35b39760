package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/formflow/formflow/internal/blocks"
	"github.com/formflow/formflow/internal/diagram"
	"github.com/formflow/formflow/internal/engine"
	"github.com/formflow/formflow/internal/expressions"
	"github.com/formflow/formflow/internal/logging"
	"github.com/formflow/formflow/internal/outbound"
	"github.com/formflow/formflow/internal/scheduler"
	"github.com/formflow/formflow/internal/store"
	"github.com/formflow/formflow/internal/tenant"
	"github.com/formflow/formflow/internal/validation"
	"github.com/formflow/formflow/pkg/schema"
)

const usage = `formflow - workflow run engine

Usage:
  formflow migrate                    apply store migrations
  formflow run <workflow-id> [k=v...] run a workflow to completion (params as k=v)
  formflow preview <workflow-id>      dry-run a workflow (no writes, no network)
  formflow validate <workflow-id>     check a workflow definition
  formflow diagram <workflow-id>      print a Mermaid flowchart of a workflow
  formflow schedule                   run the cron scheduler until interrupted
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := loadConfig()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("command failed", "error", err.Error())
		os.Exit(1)
	}
}

func newLogger(cfg Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func run(cfg Config, logger *slog.Logger, command string, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}
	if command == "migrate" {
		logger.Info("migrations applied", "db_path", cfg.DBPath)
		return nil
	}

	orch, err := buildOrchestrator(cfg, logger, st)
	if err != nil {
		return err
	}

	switch command {
	case "run":
		return runWorkflow(ctx, orch, args, blocks.ModeLive)
	case "preview":
		return runWorkflow(ctx, orch, args, blocks.ModePreview)
	case "validate":
		return validateWorkflow(ctx, st, args)
	case "diagram":
		return diagramWorkflow(ctx, st, args)
	case "schedule":
		if !cfg.SchedulerEnabled {
			return fmt.Errorf("scheduler is disabled (scheduler_enabled in settings.json, FORMFLOW_SCHEDULER to override)")
		}
		return runScheduler(ctx, st, orch, logger)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func buildOrchestrator(cfg Config, logger *slog.Logger, st *store.LibSQLStore) (*engine.Orchestrator, error) {
	cel, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}

	wv, err := validation.NewWorkflowValidator()
	if err != nil {
		return nil, err
	}

	tenants := tenant.NewResolverTTL(st, cfg.tenantCacheTTL())
	registry, err := blocks.NewDefaultRegistry(blocks.Deps{
		Tables:  st,
		Records: st,
		Queries: st,
		Tenants: tenants,
		Dispatcher: outbound.NewHTTPDispatcher(outbound.Config{
			Timeout:         cfg.httpTimeout(),
			MaxResponseBody: cfg.MaxResponseBody,
		}),
		CEL:    cel,
		Expr:   expressions.NewExprEngine(),
		JQ:     expressions.NewGoJQEngine(),
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	registry.SetValidator(wv.Configs())

	return engine.NewOrchestrator(st, registry, tenants, logger), nil
}

func runWorkflow(ctx context.Context, orch *engine.Orchestrator, args []string, mode blocks.Mode) error {
	if len(args) < 1 {
		return fmt.Errorf("workflow id required")
	}
	workflowID := args[0]

	queryParams := map[string]string{}
	for _, arg := range args[1:] {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("malformed param %q, expected key=value", arg)
		}
		queryParams[key] = value
	}

	run, err := orch.RunToCompletion(ctx, workflowID, mode, nil, queryParams)
	if err != nil {
		return err
	}

	return json.NewEncoder(os.Stdout).Encode(run)
}

func validateWorkflow(ctx context.Context, st *store.LibSQLStore, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("workflow id required")
	}
	def, err := loadDefinition(ctx, st, args[0])
	if err != nil {
		return err
	}

	wv, err := validation.NewWorkflowValidator()
	if err != nil {
		return err
	}
	result := wv.Validate(def)
	if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
		return err
	}
	if !result.Valid() {
		return fmt.Errorf("workflow %q is invalid", args[0])
	}
	return nil
}

func diagramWorkflow(ctx context.Context, st *store.LibSQLStore, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("workflow id required")
	}
	def, err := loadDefinition(ctx, st, args[0])
	if err != nil {
		return err
	}
	fmt.Print(diagram.RenderMermaid(diagram.BuildModel(def)))
	return nil
}

// loadDefinition assembles the full definition from its persisted parts.
func loadDefinition(ctx context.Context, st *store.LibSQLStore, workflowID string) (*schema.WorkflowDefinition, error) {
	wf, err := st.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	sections, err := st.ListSections(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	for _, sec := range sections {
		steps, err := st.ListSteps(ctx, sec.ID, true)
		if err != nil {
			return nil, err
		}
		sec.Steps = steps
	}

	blockDefs, err := st.ListBlocks(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	def := &schema.WorkflowDefinition{
		ID:        wf.ID,
		Name:      wf.Name,
		CreatedBy: wf.CreatedBy,
		Sections:  sections,
		Blocks:    blockDefs,
		CreatedAt: wf.CreatedAt,
		UpdatedAt: wf.UpdatedAt,
	}
	if wf.ProjectID != nil {
		def.ProjectID = *wf.ProjectID
	}
	return def, nil
}

func runScheduler(ctx context.Context, st *store.LibSQLStore, orch *engine.Orchestrator, logger *slog.Logger) error {
	sched := scheduler.NewScheduler(st, orch, logger)
	if err := sched.RecoverMissed(ctx); err != nil {
		logger.Warn("missed-schedule recovery failed", "error", err.Error())
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return sched.Stop()
}
