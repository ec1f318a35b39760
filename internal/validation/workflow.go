package validation

import (
	"encoding/json"
	"fmt"

	"github.com/formflow/formflow/pkg/schema"
)

// WorkflowValidator runs the two-stage definition check:
// 1. Structural — every block config against its type's JSON Schema.
// 2. References — duplicate ids, phase validity, section targets.
// Structural errors on a block skip its reference checks; the config may not
// decode.
type WorkflowValidator struct {
	configs *ConfigSchemaValidator
}

// NewWorkflowValidator creates a WorkflowValidator.
func NewWorkflowValidator() (*WorkflowValidator, error) {
	cv, err := NewConfigSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{configs: cv}, nil
}

// Configs exposes the block config validator for registry wiring.
func (wv *WorkflowValidator) Configs() *ConfigSchemaValidator {
	return wv.configs
}

// Validate checks a full workflow definition and returns the aggregated
// result. Warnings never make the result invalid.
func (wv *WorkflowValidator) Validate(def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if def == nil {
		result.AddError("/", schema.ErrCodeValidation, "workflow definition is nil")
		return result
	}

	sectionIDs := wv.checkSections(def, result)
	wv.checkBlocks(def, sectionIDs, result)
	return result
}

func (wv *WorkflowValidator) checkSections(def *schema.WorkflowDefinition, result *schema.ValidationResult) map[string]bool {
	sectionIDs := make(map[string]bool, len(def.Sections))
	stepIDs := map[string]bool{}
	aliases := map[string]string{}

	for i, sec := range def.Sections {
		path := fmt.Sprintf("sections[%d]", i)
		if sec.ID == "" {
			result.AddError(path+".id", schema.ErrCodeValidation, "section id is empty")
			continue
		}
		if sectionIDs[sec.ID] {
			result.AddError(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate section id %q", sec.ID))
			continue
		}
		sectionIDs[sec.ID] = true

		for j, step := range sec.Steps {
			stepPath := fmt.Sprintf("%s.steps[%d]", path, j)
			if step.ID == "" {
				result.AddError(stepPath+".id", schema.ErrCodeValidation, "step id is empty")
				continue
			}
			if stepIDs[step.ID] {
				result.AddError(stepPath+".id", schema.ErrCodeValidation,
					fmt.Sprintf("duplicate step id %q", step.ID))
			}
			stepIDs[step.ID] = true

			if step.Alias == "" {
				continue
			}
			if owner, taken := aliases[step.Alias]; taken {
				result.AddError(stepPath+".alias", schema.ErrCodeValidation,
					fmt.Sprintf("alias %q already used by step %q", step.Alias, owner))
				continue
			}
			aliases[step.Alias] = step.ID
		}
	}
	return sectionIDs
}

func (wv *WorkflowValidator) checkBlocks(def *schema.WorkflowDefinition, sectionIDs map[string]bool, result *schema.ValidationResult) {
	blockIDs := make(map[string]bool, len(def.Blocks))

	for i, block := range def.Blocks {
		path := fmt.Sprintf("blocks[%d]", i)

		if block.ID == "" {
			result.AddError(path+".id", schema.ErrCodeValidation, "block id is empty")
		} else if blockIDs[block.ID] {
			result.AddError(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate block id %q", block.ID))
		}
		blockIDs[block.ID] = true

		if !schema.ValidPhase(block.Phase) {
			result.AddError(path+".phase", schema.ErrCodeValidation,
				fmt.Sprintf("invalid phase %q", block.Phase))
		}
		if block.SectionID != nil && !sectionIDs[*block.SectionID] {
			result.AddError(path+".sectionId", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent section %q", *block.SectionID))
		}

		if err := wv.configs.ValidateConfig(block.Type, block.Config); err != nil {
			msg := err.Error()
			if fe, ok := err.(*schema.FlowError); ok {
				msg = fe.Message
			}
			result.AddError(path+".config", schema.ErrCodeValidation, msg)
			continue
		}

		if block.Type == schema.BlockTypeBranch {
			wv.checkBranchTargets(block, path, sectionIDs, result)
		}
	}
}

// checkBranchTargets verifies every goto and fallback names a real section.
func (wv *WorkflowValidator) checkBranchTargets(block *schema.Block, path string, sectionIDs map[string]bool, result *schema.ValidationResult) {
	cfg := &schema.BranchConfig{}
	if len(block.Config) > 0 {
		if err := json.Unmarshal(block.Config, cfg); err != nil {
			return
		}
	}

	for j, rule := range cfg.Branches {
		if !sectionIDs[rule.GotoSectionID] {
			result.AddError(fmt.Sprintf("%s.config.branches[%d].gotoSectionId", path, j),
				schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent section %q", rule.GotoSectionID))
		}
	}
	if cfg.FallbackSectionID != "" && !sectionIDs[cfg.FallbackSectionID] {
		result.AddError(path+".config.fallbackSectionId", schema.ErrCodeValidation,
			fmt.Sprintf("references non-existent section %q", cfg.FallbackSectionID))
	}
	if len(cfg.Branches) == 0 && cfg.FallbackSectionID == "" {
		result.AddWarning(path+".config", schema.ErrCodeValidation,
			"branch block has no rules and no fallback; it never routes anywhere")
	}
}
