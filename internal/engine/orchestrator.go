// Package engine drives runs through the lifecycle phase machine:
// onRunStart, then onSectionEnter / onSectionSubmit / onNext per visited
// section, then onRunComplete. Blocks within a phase execute strictly
// sequentially in ascending order so later blocks can read earlier outputs.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/formflow/formflow/internal/blocks"
	"github.com/formflow/formflow/internal/logging"
	"github.com/formflow/formflow/internal/store"
	"github.com/formflow/formflow/internal/tenant"
	"github.com/formflow/formflow/pkg/schema"
)

// PhaseOutcome is the aggregate result of one phase firing.
type PhaseOutcome struct {
	Phase         schema.Phase   `json:"phase"`
	SectionID     string         `json:"sectionId,omitempty"`
	Data          map[string]any `json:"data"`
	NextSectionID string         `json:"nextSectionId,omitempty"`
	Errors        []string       `json:"errors,omitempty"`
	BlocksRun     int            `json:"blocksRun"`
}

// Orchestrator coordinates phase firings for runs. It owns data-bag loading
// and persistence; runners stay pure request/response. Preview runs never
// touch the store for bag state, so their answers and phase outputs are held
// in memory instead and overlaid on every bag load.
type Orchestrator struct {
	store    store.Store
	registry *blocks.Registry
	tenants  *tenant.Resolver
	logger   *slog.Logger

	mu          sync.Mutex
	previewBags map[string]map[string]any
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(s store.Store, registry *blocks.Registry, tenants *tenant.Resolver, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:       s,
		registry:    registry,
		tenants:     tenants,
		logger:      logger,
		previewBags: map[string]map[string]any{},
	}
}

// StartRun creates a run and fires onRunStart.
func (o *Orchestrator) StartRun(ctx context.Context, workflowID string, mode blocks.Mode, queryParams map[string]string) (*store.Run, *PhaseOutcome, error) {
	if mode == "" {
		mode = blocks.ModeLive
	}
	run := &store.Run{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Mode:       string(mode),
		Status:     "active",
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, nil, err
	}

	outcome, err := o.firePhase(ctx, run, schema.PhaseRunStart, "", queryParams)
	if err != nil {
		return nil, nil, err
	}
	return run, outcome, nil
}

// EnterSection fires onSectionEnter for a section.
func (o *Orchestrator) EnterSection(ctx context.Context, runID, sectionID string) (*PhaseOutcome, error) {
	return o.FirePhase(ctx, runID, schema.PhaseSectionEnter, sectionID)
}

// SubmitSection fires onSectionSubmit and then onNext for a section. The
// submitted answers are recorded before any block runs, so validations and
// writes observe them; preview runs record them in memory only. The returned
// outcome reflects the onNext firing, carrying any branch override; submit
// errors are folded in.
func (o *Orchestrator) SubmitSection(ctx context.Context, runID, sectionID string, answers map[string]any) (*PhaseOutcome, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Mode == string(blocks.ModePreview) {
		o.stashPreview(runID, answers)
	} else if err := o.persistDelta(ctx, runID, answers); err != nil {
		return nil, err
	}

	submit, err := o.firePhase(ctx, run, schema.PhaseSectionSubmit, sectionID, nil)
	if err != nil {
		return nil, err
	}
	next, err := o.firePhase(ctx, run, schema.PhaseNext, sectionID, nil)
	if err != nil {
		return nil, err
	}

	next.Errors = append(submit.Errors, next.Errors...)
	next.BlocksRun += submit.BlocksRun
	if next.NextSectionID == "" {
		next.NextSectionID = submit.NextSectionID
	}
	return next, nil
}

// CompleteRun fires onRunComplete and marks the run completed.
func (o *Orchestrator) CompleteRun(ctx context.Context, runID string) (*PhaseOutcome, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	outcome, err := o.firePhase(ctx, run, schema.PhaseRunComplete, "", nil)
	if err != nil {
		return nil, err
	}
	if run.Mode == string(blocks.ModePreview) {
		o.dropPreview(runID)
		return outcome, nil
	}
	if err := o.store.UpdateRunStatus(ctx, runID, "completed"); err != nil {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("failed to mark run completed: %s", err.Error()))
	}
	return outcome, nil
}

// FirePhase fires one phase for a run.
func (o *Orchestrator) FirePhase(ctx context.Context, runID string, phase schema.Phase, sectionID string) (*PhaseOutcome, error) {
	if !schema.ValidPhase(phase) {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid phase %q", phase)
	}
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return o.firePhase(ctx, run, phase, sectionID, nil)
}

func (o *Orchestrator) firePhase(ctx context.Context, run *store.Run, phase schema.Phase, sectionID string, queryParams map[string]string) (*PhaseOutcome, error) {
	ctx = logging.WithRunID(ctx, run.ID)

	bag, aliasMap, err := o.loadBag(ctx, run)
	if err != nil {
		return nil, err
	}

	all, err := o.store.ListBlocks(ctx, run.WorkflowID)
	if err != nil {
		return nil, err
	}
	selected := selectBlocks(all, phase, sectionID)

	tenantID := ""
	if o.tenants != nil {
		// Best effort up front; side-effecting runners re-check and fail
		// closed themselves when this is empty.
		if resolved, err := o.tenants.Resolve(ctx, run.WorkflowID); err == nil {
			tenantID = resolved
		}
	}

	outcome := &PhaseOutcome{Phase: phase, SectionID: sectionID, BlocksRun: len(selected)}
	delta := map[string]any{}

	for _, block := range selected {
		bc := &blocks.Context{
			WorkflowID:  run.WorkflowID,
			RunID:       run.ID,
			TenantID:    tenantID,
			Mode:        blocks.Mode(run.Mode),
			Phase:       phase,
			SectionID:   sectionID,
			Data:        bag,
			AliasMap:    aliasMap,
			QueryParams: queryParams,
		}

		blockCtx := logging.WithBlockID(ctx, block.ID)
		result := o.registry.Execute(blockCtx, bc, block)
		if result == nil {
			result = schema.Fail("runner returned no result")
		}

		o.persistVirtualStep(blockCtx, run, block, result)

		// Merge immediately so the next block in this phase sees it.
		for k, v := range result.Data {
			bag[k] = v
			delta[k] = v
		}
		outcome.Errors = append(outcome.Errors, result.Errors...)

		// First branch override wins; execution still continues.
		if result.NextSectionID != "" && outcome.NextSectionID == "" {
			outcome.NextSectionID = result.NextSectionID
		}

		if !result.Success {
			o.logger.WarnContext(blockCtx, "block failed",
				"type", string(block.Type),
				"errors", result.Errors)
		}
	}

	if run.Mode == string(blocks.ModePreview) {
		o.stashPreview(run.ID, delta)
	} else if err := o.persistDelta(ctx, run.ID, delta); err != nil {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("failed to persist phase outputs: %s", err.Error()))
	}

	outcome.Data = bag
	return outcome, nil
}

// NextSection returns the section after current in declared order, or empty
// when current is the last. An empty current returns the first section.
func (o *Orchestrator) NextSection(ctx context.Context, workflowID, currentSectionID string) (string, error) {
	sections, err := o.store.ListSections(ctx, workflowID)
	if err != nil {
		return "", err
	}
	if len(sections) == 0 {
		return "", nil
	}
	if currentSectionID == "" {
		return sections[0].ID, nil
	}
	for i, sec := range sections {
		if sec.ID == currentSectionID {
			if i+1 < len(sections) {
				return sections[i+1].ID, nil
			}
			return "", nil
		}
	}
	return "", schema.NewErrorf(schema.ErrCodeNotFound, "section %q not in workflow %q", currentSectionID, workflowID)
}

// RunToCompletion starts a run and walks every section: enter, submit with
// the provided answers, then advance honoring branch overrides. Used by
// scheduled (headless) runs. A visit cap guards against branch cycles.
func (o *Orchestrator) RunToCompletion(ctx context.Context, workflowID string, mode blocks.Mode, answers map[string]map[string]any, queryParams map[string]string) (*store.Run, error) {
	run, _, err := o.StartRun(ctx, workflowID, mode, queryParams)
	if err != nil {
		return nil, err
	}

	sections, err := o.store.ListSections(ctx, run.WorkflowID)
	if err != nil {
		return nil, err
	}

	current, err := o.NextSection(ctx, workflowID, "")
	if err != nil {
		return nil, err
	}

	maxVisits := len(sections)*2 + 2
	for visits := 0; current != "" && visits < maxVisits; visits++ {
		if _, err := o.EnterSection(ctx, run.ID, current); err != nil {
			return nil, err
		}
		outcome, err := o.SubmitSection(ctx, run.ID, current, answers[current])
		if err != nil {
			return nil, err
		}
		if outcome.NextSectionID != "" {
			current = outcome.NextSectionID
			continue
		}
		current, err = o.NextSection(ctx, workflowID, current)
		if err != nil {
			return nil, err
		}
	}

	if _, err := o.CompleteRun(ctx, run.ID); err != nil {
		return nil, err
	}
	return run, nil
}

// loadBag reconstructs the run's data bag from persisted step values and
// builds the alias map from the workflow's steps. Values are keyed by step
// id; aliased steps are mirrored under their alias. Preview runs overlay
// their in-memory values so routing matches an equivalent live run.
func (o *Orchestrator) loadBag(ctx context.Context, run *store.Run) (map[string]any, map[string]string, error) {
	bag := map[string]any{}

	values, err := o.store.ListStepValues(ctx, run.ID)
	if err != nil {
		return nil, nil, err
	}
	for _, sv := range values {
		var decoded any
		if len(sv.Value) > 0 {
			if err := json.Unmarshal(sv.Value, &decoded); err != nil {
				o.logger.WarnContext(ctx, "skipping undecodable step value", "step_id", sv.StepID)
				continue
			}
		}
		bag[sv.StepID] = decoded
	}

	if run.Mode == string(blocks.ModePreview) {
		for k, v := range o.previewValues(run.ID) {
			bag[k] = v
		}
	}

	aliasMap := map[string]string{}
	sections, err := o.store.ListSections(ctx, run.WorkflowID)
	if err != nil {
		return nil, nil, err
	}
	for _, sec := range sections {
		steps, err := o.store.ListSteps(ctx, sec.ID, true)
		if err != nil {
			return nil, nil, err
		}
		for _, step := range steps {
			if step.Alias == "" {
				continue
			}
			aliasMap[step.Alias] = step.ID
			if v, ok := bag[step.ID]; ok {
				bag[step.Alias] = v
			}
		}
	}
	return bag, aliasMap, nil
}

// persistVirtualStep upserts a block's raw output to its virtual step.
// Failure is a warning on the result, never a phase abort: the primary
// operation already succeeded.
func (o *Orchestrator) persistVirtualStep(ctx context.Context, run *store.Run, block *schema.Block, result *schema.BlockResult) {
	if !result.Success || result.Output == nil || block.VirtualStepID == nil {
		return
	}
	if run.Mode == string(blocks.ModePreview) {
		return
	}

	encoded, err := json.Marshal(result.Output)
	if err == nil {
		err = o.store.UpsertStepValue(ctx, &store.StepValue{
			RunID:  run.ID,
			StepID: *block.VirtualStepID,
			Value:  encoded,
		})
	}
	if err != nil {
		msg := fmt.Sprintf("failed to persist block output to virtual step: %s", err.Error())
		result.AddWarning(msg)
		o.logger.WarnContext(ctx, "virtual step persistence failed",
			"virtual_step_id", *block.VirtualStepID, "error", err.Error())
	}
}

// stashPreview records preview-run answers and phase outputs in memory.
// They feed later bag loads for the same run but never reach the store.
func (o *Orchestrator) stashPreview(runID string, delta map[string]any) {
	if len(delta) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	bag, ok := o.previewBags[runID]
	if !ok {
		bag = map[string]any{}
		o.previewBags[runID] = bag
	}
	for k, v := range delta {
		bag[k] = v
	}
}

func (o *Orchestrator) previewValues(runID string) map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]any, len(o.previewBags[runID]))
	for k, v := range o.previewBags[runID] {
		out[k] = v
	}
	return out
}

func (o *Orchestrator) dropPreview(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.previewBags, runID)
}

// persistDelta writes phase outputs back as step values so later phases
// reconstruct the same bag. Upserts are idempotent last-write-wins.
func (o *Orchestrator) persistDelta(ctx context.Context, runID string, delta map[string]any) error {
	for key, value := range delta {
		encoded, err := json.Marshal(value)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "encode value for %q: %s", key, err.Error()).WithCause(err)
		}
		if err := o.store.UpsertStepValue(ctx, &store.StepValue{RunID: runID, StepID: key, Value: encoded}); err != nil {
			return err
		}
	}
	return nil
}

// selectBlocks picks the enabled blocks firing for a phase and scope, in
// ascending order.
func selectBlocks(all []*schema.Block, phase schema.Phase, sectionID string) []*schema.Block {
	var selected []*schema.Block
	for _, b := range all {
		if !b.Enabled || b.Phase != phase {
			continue
		}
		if !b.ScopedTo(sectionID) {
			continue
		}
		selected = append(selected, b)
	}
	sort.SliceStable(selected, func(i, j int) bool { return selected[i].Order < selected[j].Order })
	return selected
}
