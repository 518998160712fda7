package merge

import "fmt"

const (
	planErrorMessageTemplateConstant      = "invalid merge plan: %s"
	toolErrorMessageTemplateConstant      = "required tool %s is not available: %v"
	acquireErrorMessageTemplateConstant   = "unable to acquire repository %s from %s: %v"
	transformErrorMessageTemplateConstant = "unable to transform repository %s during %s: %v"
)

// Stage identifies the portion of a merge run that produced a warning or error.
type Stage string

// Stage values cover every step of a merge run that records warnings or errors.
const (
	StageReset       Stage = "reset"
	StageBranchGrab  Stage = "branch_grab"
	StagePreserve    Stage = "preserve"
	StageFilter      Stage = "filter"
	StageRelocate    Stage = "relocate"
	StageRestore     Stage = "restore"
	StageMerge       Stage = "merge"
	StageBranchMerge Stage = "branch_merge"
	StageFinalRemote Stage = "final_remote"
	StageCompaction  Stage = "compaction"
	StageReport      Stage = "report"
	StageSummary     Stage = "summary"
)

// Warning captures a recoverable failure observed while a merge run continued.
type Warning struct {
	Repository string
	Stage      Stage
	Message    string
}

// PlanError reports a merge plan that could not be loaded or validated.
type PlanError struct {
	Message string
	Cause   error
}

// Error describes the plan failure.
func (planError *PlanError) Error() string {
	return fmt.Sprintf(planErrorMessageTemplateConstant, planError.Message)
}

// Unwrap exposes the underlying cause when one exists.
func (planError *PlanError) Unwrap() error {
	return planError.Cause
}

// ToolError reports a missing or broken external tool discovered during preflight.
type ToolError struct {
	ToolName string
	Cause    error
}

// Error describes the missing tool.
func (toolError *ToolError) Error() string {
	return fmt.Sprintf(toolErrorMessageTemplateConstant, toolError.ToolName, toolError.Cause)
}

// Unwrap exposes the underlying cause.
func (toolError *ToolError) Unwrap() error {
	return toolError.Cause
}

// AcquireError reports a source repository that could not be cloned.
type AcquireError struct {
	RepositoryName string
	SourceURL      string
	Cause          error
}

// Error describes the acquisition failure.
func (acquireError *AcquireError) Error() string {
	return fmt.Sprintf(acquireErrorMessageTemplateConstant, acquireError.RepositoryName, acquireError.SourceURL, acquireError.Cause)
}

// Unwrap exposes the underlying cause.
func (acquireError *AcquireError) Unwrap() error {
	return acquireError.Cause
}

// TransformError reports a history rewrite step that invalidated a repository clone.
type TransformError struct {
	RepositoryName string
	Stage          Stage
	Cause          error
}

// Error describes the transformation failure.
func (transformError *TransformError) Error() string {
	return fmt.Sprintf(transformErrorMessageTemplateConstant, transformError.RepositoryName, transformError.Stage, transformError.Cause)
}

// Unwrap exposes the underlying cause.
func (transformError *TransformError) Unwrap() error {
	return transformError.Cause
}
