package merge

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
)

const (
	grabRemoteNameConstant                = "grab"
	grabStartPointTemplateConstant        = "%s/%s"
	originRemoteReferenceTemplateConstant = "origin/%s"
	restorationCommitMessageConstant      = "Restore preserved files"
	resetWarningTemplateConstant          = "unable to reset to branch %s: %v"
	grabRemoteWarningTemplateConstant     = "unable to add grab remote for %s: %v"
	grabFetchWarningTemplateConstant      = "unable to fetch branch %s: %v"
	grabBranchWarningTemplateConstant     = "unable to create branch %s: %v"
	grabCleanupWarningTemplateConstant    = "unable to remove grab remote: %v"
	transformStartedLogMessageConstant    = "Transforming repository"
	transformCompletedLogMessageConstant  = "Transformed repository"
	repositoryNameLogFieldConstant        = "repository"
	workingPathLogFieldConstant           = "path"
	grabbedBranchCountLogFieldConstant    = "grabbed_branches"
	preservedFileCountLogFieldConstant    = "preserved_files"
)

// transformOutcome carries the state a transformed clone contributes to the merge step.
type transformOutcome struct {
	repositorySpec  RepositorySpec
	workingPath     string
	grabbedBranches []string
	warnings        []Warning
}

// transformRepository clones one source repository into the workspace and
// rewrites its history according to the repository specification. Clone,
// filter, relocation, and restoration failures abort the run; branch resets
// and branch grabs degrade to warnings.
func (service *Service) transformRepository(executionContext context.Context, workspace *Workspace, repositorySpec RepositorySpec) (transformOutcome, error) {
	outcome := transformOutcome{repositorySpec: repositorySpec, workingPath: workspace.RepositoryPath(repositorySpec.Name)}
	service.logger.Info(transformStartedLogMessageConstant,
		zap.String(repositoryNameLogFieldConstant, repositorySpec.Name),
		zap.String(workingPathLogFieldConstant, outcome.workingPath),
	)

	if removalError := os.RemoveAll(outcome.workingPath); removalError != nil {
		return outcome, &AcquireError{RepositoryName: repositorySpec.Name, SourceURL: repositorySpec.URL, Cause: removalError}
	}
	if cloneError := service.repositoryManager.CloneRepository(executionContext, repositorySpec.URL, outcome.workingPath); cloneError != nil {
		return outcome, &AcquireError{RepositoryName: repositorySpec.Name, SourceURL: repositorySpec.URL, Cause: cloneError}
	}

	if len(repositorySpec.ResetToBranch) > 0 {
		resetReference := fmt.Sprintf(originRemoteReferenceTemplateConstant, repositorySpec.ResetToBranch)
		if resetError := service.repositoryManager.HardReset(executionContext, outcome.workingPath, resetReference); resetError != nil {
			outcome.warnings = append(outcome.warnings, Warning{
				Repository: repositorySpec.Name,
				Stage:      StageReset,
				Message:    fmt.Sprintf(resetWarningTemplateConstant, repositorySpec.ResetToBranch, resetError),
			})
		}
	}

	for _, branchGrab := range repositorySpec.BranchesToGrab {
		outcome.warnings = append(outcome.warnings, service.grabBranch(executionContext, &outcome, branchGrab)...)
	}

	capturedNames, snapshotError := snapshotPreservedFiles(outcome.workingPath, workspace.PreservePath(repositorySpec.Name), repositorySpec.PreserveFiles)
	if snapshotError != nil {
		return outcome, &TransformError{RepositoryName: repositorySpec.Name, Stage: StagePreserve, Cause: snapshotError}
	}

	if len(repositorySpec.FilterPaths) > 0 {
		if filterError := service.repositoryManager.FilterHistoryPaths(executionContext, outcome.workingPath, repositorySpec.FilterPaths, repositorySpec.InvertPaths); filterError != nil {
			return outcome, &TransformError{RepositoryName: repositorySpec.Name, Stage: StageFilter, Cause: filterError}
		}
	}

	if len(repositorySpec.Subdirectory) > 0 {
		if relocateError := service.repositoryManager.RelocateToSubdirectory(executionContext, outcome.workingPath, repositorySpec.Subdirectory); relocateError != nil {
			return outcome, &TransformError{RepositoryName: repositorySpec.Name, Stage: StageRelocate, Cause: relocateError}
		}
	}

	if len(capturedNames) > 0 {
		if restorationError := service.restoreSnapshots(executionContext, workspace, &outcome, capturedNames); restorationError != nil {
			return outcome, restorationError
		}
	}

	service.logger.Info(transformCompletedLogMessageConstant,
		zap.String(repositoryNameLogFieldConstant, repositorySpec.Name),
		zap.Int(grabbedBranchCountLogFieldConstant, len(outcome.grabbedBranches)),
		zap.Int(preservedFileCountLogFieldConstant, len(capturedNames)),
	)
	return outcome, nil
}

// grabBranch fetches one extra branch through a temporary remote and records it
// as a local branch in the clone. Every failure degrades to a warning; the
// temporary remote is removed regardless.
func (service *Service) grabBranch(executionContext context.Context, outcome *transformOutcome, branchGrab BranchGrab) []Warning {
	warnings := []Warning{}
	repositoryName := outcome.repositorySpec.Name

	if addError := service.repositoryManager.AddRemote(executionContext, outcome.workingPath, grabRemoteNameConstant, branchGrab.RemoteURL); addError != nil {
		warnings = append(warnings, Warning{
			Repository: repositoryName,
			Stage:      StageBranchGrab,
			Message:    fmt.Sprintf(grabRemoteWarningTemplateConstant, branchGrab.Branch, addError),
		})
		return warnings
	}

	fetchError := service.repositoryManager.FetchBranch(executionContext, outcome.workingPath, grabRemoteNameConstant, branchGrab.Branch)
	if fetchError != nil {
		warnings = append(warnings, Warning{
			Repository: repositoryName,
			Stage:      StageBranchGrab,
			Message:    fmt.Sprintf(grabFetchWarningTemplateConstant, branchGrab.Branch, fetchError),
		})
	} else {
		startPoint := fmt.Sprintf(grabStartPointTemplateConstant, grabRemoteNameConstant, branchGrab.Branch)
		if branchError := service.repositoryManager.CreateBranch(executionContext, outcome.workingPath, branchGrab.Branch, startPoint); branchError != nil {
			warnings = append(warnings, Warning{
				Repository: repositoryName,
				Stage:      StageBranchGrab,
				Message:    fmt.Sprintf(grabBranchWarningTemplateConstant, branchGrab.Branch, branchError),
			})
		} else {
			outcome.grabbedBranches = append(outcome.grabbedBranches, branchGrab.Branch)
		}
	}

	if removeError := service.repositoryManager.RemoveRemote(executionContext, outcome.workingPath, grabRemoteNameConstant); removeError != nil {
		warnings = append(warnings, Warning{
			Repository: repositoryName,
			Stage:      StageBranchGrab,
			Message:    fmt.Sprintf(grabCleanupWarningTemplateConstant, removeError),
		})
	}
	return warnings
}

// restoreSnapshots writes preserved files back under the relocation
// subdirectory and commits them when the working tree changed.
func (service *Service) restoreSnapshots(executionContext context.Context, workspace *Workspace, outcome *transformOutcome, capturedNames []string) error {
	repositorySpec := outcome.repositorySpec
	restoredPaths, restoreError := restorePreservedFiles(outcome.workingPath, workspace.PreservePath(repositorySpec.Name), repositorySpec.Subdirectory, capturedNames)
	if restoreError != nil {
		return &TransformError{RepositoryName: repositorySpec.Name, Stage: StageRestore, Cause: restoreError}
	}
	for _, restoredPath := range restoredPaths {
		if stageError := service.repositoryManager.StagePath(executionContext, outcome.workingPath, restoredPath); stageError != nil {
			return &TransformError{RepositoryName: repositorySpec.Name, Stage: StageRestore, Cause: stageError}
		}
	}
	treeChanged, statusError := service.repositoryManager.WorkingTreeChanged(executionContext, outcome.workingPath)
	if statusError != nil {
		return &TransformError{RepositoryName: repositorySpec.Name, Stage: StageRestore, Cause: statusError}
	}
	if !treeChanged {
		return nil
	}
	if commitError := service.repositoryManager.CreateCommit(executionContext, outcome.workingPath, restorationCommitMessageConstant); commitError != nil {
		return &TransformError{RepositoryName: repositorySpec.Name, Stage: StageRestore, Cause: commitError}
	}
	return nil
}
