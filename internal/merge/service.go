package merge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/repofold/internal/execshell"
	"github.com/temirov/repofold/internal/gitrepo"
)

const (
	gitToolNameConstant                     = "git"
	filterRepoToolNameConstant              = "git filter-repo"
	loggerMissingMessageConstant            = "logger not configured"
	repositoryManagerMissingMessageConstant = "repository manager not configured"
	outputNameMissingMessageConstant        = "output repository name not provided"
	invalidOutputNameMessageConstant        = "output repository name %q is not a valid directory name"
	homeDirectoryErrorTemplateConstant      = "unable to resolve home directory: %w"
	outputResetErrorTemplateConstant        = "unable to reset output directory %s: %w"
	outputCreateErrorTemplateConstant       = "unable to create output directory %s: %w"
	mergeFailedWarningTemplateConstant      = "unable to merge %s: %v"
	branchCheckoutWarningTemplateConstant   = "unable to check out branch %s: %v"
	branchMergeWarningTemplateConstant      = "unable to merge branch %s: %v"
	branchReturnWarningTemplateConstant     = "unable to return to branch %s: %v"
	finalRemoteWarningTemplateConstant      = "unable to add remote %s: %v"
	referenceListWarningTemplateConstant    = "unable to list rewrite backup references: %v"
	referenceDeleteWarningTemplateConstant  = "unable to delete rewrite backup references: %v"
	reflogExpireWarningTemplateConstant     = "unable to expire reflog: %v"
	garbageCollectWarningTemplateConstant   = "unable to collect garbage: %v"
	reportWarningTemplateConstant           = "unable to write large object report: %v"
	diskUsageWarningTemplateConstant        = "unable to measure disk usage: %v"
	workspaceCleanupWarningTemplateConstant = "unable to remove workspace %s"
	diskUsageHumanReadableFlagConstant      = "-sh"
	runStartedLogMessageConstant            = "Starting merge run"
	runCompletedLogMessageConstant          = "Completed merge run"
	warningLogMessageConstant               = "Continuing after recoverable failure"
	outputPathLogFieldConstant              = "output"
	repositoryCountLogFieldConstant         = "repositories"
	workerCountLogFieldConstant             = "workers"
	warningStageLogFieldConstant            = "stage"
	warningMessageLogFieldConstant          = "message"
	mergedCountLogFieldConstant             = "merged"
	failedCountLogFieldConstant             = "failed"
	warningCountLogFieldConstant            = "warnings"
)

var (
	errLoggerMissing            = errors.New(loggerMissingMessageConstant)
	errRepositoryManagerMissing = errors.New(repositoryManagerMissingMessageConstant)
)

// DiskUsageExecutor measures on-disk size of the merged repository.
type DiskUsageExecutor interface {
	ExecuteDiskUsage(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// ServiceDependencies supplies the collaborators a merge Service requires.
// DiskUsageExecutor is optional; without it the summary omits disk usage.
type ServiceDependencies struct {
	Logger            *zap.Logger
	RepositoryManager *gitrepo.RepositoryManager
	DiskUsageExecutor DiskUsageExecutor
}

// Service folds the histories of the planned source repositories into a single
// output repository.
type Service struct {
	logger            *zap.Logger
	repositoryManager *gitrepo.RepositoryManager
	diskUsageExecutor DiskUsageExecutor
}

// NewService validates the dependencies and constructs a merge Service.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Logger == nil {
		return nil, errLoggerMissing
	}
	if dependencies.RepositoryManager == nil {
		return nil, errRepositoryManagerMissing
	}
	return &Service{
		logger:            dependencies.Logger,
		repositoryManager: dependencies.RepositoryManager,
		diskUsageExecutor: dependencies.DiskUsageExecutor,
	}, nil
}

// RunOptions tunes a single merge run.
type RunOptions struct {
	OutputName                string
	BaseDirectory             string
	TemporaryDirectory        string
	TransformWorkers          int
	RunGarbageCollection      bool
	WriteLargeObjectReport    bool
	LargeObjectThresholdBytes int64
}

// RunReport summarizes a completed merge run.
type RunReport struct {
	OutputPath          string
	ReportFilePath      string
	DiskUsage           string
	MergedRepositories  []string
	FailedRepositories  []string
	Warnings            []Warning
	CompactionPerformed bool
}

// Run executes the full merge pipeline: preflight, per-repository transforms,
// sequential history merges, optional final remote, compaction, and reporting.
// Recoverable failures accumulate as warnings on the report; clone and history
// rewrite failures abort the run.
func (service *Service) Run(executionContext context.Context, mergePlan MergePlan, options RunOptions) (RunReport, error) {
	report := RunReport{}

	trimmedOutputName := strings.TrimSpace(options.OutputName)
	if len(trimmedOutputName) == 0 {
		return report, &PlanError{Message: outputNameMissingMessageConstant}
	}
	if !isValidPathSegment(trimmedOutputName) {
		return report, &PlanError{Message: fmt.Sprintf(invalidOutputNameMessageConstant, trimmedOutputName)}
	}

	baseDirectory := options.BaseDirectory
	if len(baseDirectory) == 0 {
		homeDirectory, homeError := os.UserHomeDir()
		if homeError != nil {
			return report, fmt.Errorf(homeDirectoryErrorTemplateConstant, homeError)
		}
		baseDirectory = homeDirectory
	}
	report.OutputPath = filepath.Join(baseDirectory, trimmedOutputName)

	transformWorkers := options.TransformWorkers
	if transformWorkers < 1 {
		transformWorkers = 1
	}

	if toolError := service.checkTools(executionContext, mergePlan); toolError != nil {
		return report, toolError
	}

	service.logger.Info(runStartedLogMessageConstant,
		zap.String(outputPathLogFieldConstant, report.OutputPath),
		zap.Int(repositoryCountLogFieldConstant, len(mergePlan.Repositories)),
		zap.Int(workerCountLogFieldConstant, transformWorkers),
	)

	workspace, workspaceError := NewWorkspace(options.TemporaryDirectory)
	if workspaceError != nil {
		return report, workspaceError
	}
	defer func() {
		if removalError := workspace.Remove(); removalError != nil {
			service.logger.Warn(fmt.Sprintf(workspaceCleanupWarningTemplateConstant, workspace.RootPath()), zap.Error(removalError))
		}
	}()

	if initializationError := service.initializeOutputRepository(executionContext, report.OutputPath, mergePlan.PrimaryBranch); initializationError != nil {
		return report, initializationError
	}

	outcomes, transformError := service.transformRepositories(executionContext, workspace, mergePlan, transformWorkers)
	if transformError != nil {
		return report, transformError
	}

	for _, outcome := range outcomes {
		report.Warnings = append(report.Warnings, outcome.warnings...)
		service.mergeOutcome(executionContext, mergePlan, &report, outcome)
	}

	if mergePlan.FinalRemote != nil {
		if remoteError := service.repositoryManager.AddRemote(executionContext, report.OutputPath, mergePlan.FinalRemote.Name, mergePlan.FinalRemote.URL); remoteError != nil {
			service.recordWarning(&report, "", StageFinalRemote, fmt.Sprintf(finalRemoteWarningTemplateConstant, mergePlan.FinalRemote.Name, remoteError))
		}
	}

	if options.RunGarbageCollection {
		service.compactRepository(executionContext, &report)
	}

	if options.WriteLargeObjectReport {
		thresholdBytes := options.LargeObjectThresholdBytes
		if thresholdBytes <= 0 {
			thresholdBytes = defaultLargeObjectThresholdBytesConstant
		}
		reportFilePath := filepath.Join(baseDirectory, fmt.Sprintf(largeObjectReportFileNameTemplateConstant, trimmedOutputName))
		if reportError := service.writeLargeObjectReport(executionContext, report.OutputPath, reportFilePath, thresholdBytes); reportError != nil {
			service.recordWarning(&report, "", StageReport, fmt.Sprintf(reportWarningTemplateConstant, reportError))
		} else {
			report.ReportFilePath = reportFilePath
		}
	}

	service.measureDiskUsage(executionContext, &report)

	service.logger.Info(runCompletedLogMessageConstant,
		zap.String(outputPathLogFieldConstant, report.OutputPath),
		zap.Int(mergedCountLogFieldConstant, len(report.MergedRepositories)),
		zap.Int(failedCountLogFieldConstant, len(report.FailedRepositories)),
		zap.Int(warningCountLogFieldConstant, len(report.Warnings)),
	)
	return report, nil
}

func (service *Service) checkTools(executionContext context.Context, mergePlan MergePlan) error {
	if gitError := service.repositoryManager.CheckGitAvailable(executionContext); gitError != nil {
		return &ToolError{ToolName: gitToolNameConstant, Cause: gitError}
	}
	if mergePlan.RequiresHistoryRewrite() {
		if filterRepoError := service.repositoryManager.CheckFilterRepoAvailable(executionContext); filterRepoError != nil {
			return &ToolError{ToolName: filterRepoToolNameConstant, Cause: filterRepoError}
		}
	}
	return nil
}

func (service *Service) initializeOutputRepository(executionContext context.Context, outputPath string, primaryBranch string) error {
	if removalError := os.RemoveAll(outputPath); removalError != nil {
		return fmt.Errorf(outputResetErrorTemplateConstant, outputPath, removalError)
	}
	if creationError := os.MkdirAll(outputPath, workspaceDirectoryPermissionsConstant); creationError != nil {
		return fmt.Errorf(outputCreateErrorTemplateConstant, outputPath, creationError)
	}
	return service.repositoryManager.InitializeRepository(executionContext, outputPath, primaryBranch)
}

// transformRepositories runs every repository transform, in order when a single
// worker is configured and through a bounded errgroup otherwise. Outcome order
// always matches plan order.
func (service *Service) transformRepositories(executionContext context.Context, workspace *Workspace, mergePlan MergePlan, transformWorkers int) ([]transformOutcome, error) {
	outcomes := make([]transformOutcome, len(mergePlan.Repositories))
	if transformWorkers <= 1 {
		for repositoryIndex, repositorySpec := range mergePlan.Repositories {
			outcome, transformError := service.transformRepository(executionContext, workspace, repositorySpec)
			if transformError != nil {
				return nil, transformError
			}
			outcomes[repositoryIndex] = outcome
		}
		return outcomes, nil
	}

	transformGroup, groupContext := errgroup.WithContext(executionContext)
	transformGroup.SetLimit(transformWorkers)
	for repositoryIndex, repositorySpec := range mergePlan.Repositories {
		transformGroup.Go(func() error {
			outcome, transformError := service.transformRepository(groupContext, workspace, repositorySpec)
			if transformError != nil {
				return transformError
			}
			outcomes[repositoryIndex] = outcome
			return nil
		})
	}
	if groupError := transformGroup.Wait(); groupError != nil {
		return nil, groupError
	}
	return outcomes, nil
}

// mergeOutcome pulls one transformed clone into the output repository and then
// replays each grabbed branch. A failed repository merge records a warning and
// skips that repository's branch merges.
func (service *Service) mergeOutcome(executionContext context.Context, mergePlan MergePlan, report *RunReport, outcome transformOutcome) {
	repositoryName := outcome.repositorySpec.Name
	if mergeError := service.repositoryManager.PullUnrelated(executionContext, report.OutputPath, outcome.workingPath, outcome.repositorySpec.DefaultBranch); mergeError != nil {
		report.FailedRepositories = append(report.FailedRepositories, repositoryName)
		service.recordWarning(report, repositoryName, StageMerge, fmt.Sprintf(mergeFailedWarningTemplateConstant, repositoryName, mergeError))
		return
	}
	report.MergedRepositories = append(report.MergedRepositories, repositoryName)

	for _, grabbedBranch := range outcome.grabbedBranches {
		service.mergeGrabbedBranch(executionContext, mergePlan, report, outcome, grabbedBranch)
	}
}

func (service *Service) mergeGrabbedBranch(executionContext context.Context, mergePlan MergePlan, report *RunReport, outcome transformOutcome, grabbedBranch string) {
	repositoryName := outcome.repositorySpec.Name
	branchExists, existenceError := service.repositoryManager.BranchExists(executionContext, report.OutputPath, grabbedBranch)
	if existenceError != nil {
		service.recordWarning(report, repositoryName, StageBranchMerge, fmt.Sprintf(branchCheckoutWarningTemplateConstant, grabbedBranch, existenceError))
		return
	}

	var checkoutError error
	if branchExists {
		checkoutError = service.repositoryManager.CheckoutBranch(executionContext, report.OutputPath, grabbedBranch)
	} else {
		checkoutError = service.repositoryManager.CheckoutNewBranch(executionContext, report.OutputPath, grabbedBranch)
	}
	if checkoutError != nil {
		service.recordWarning(report, repositoryName, StageBranchMerge, fmt.Sprintf(branchCheckoutWarningTemplateConstant, grabbedBranch, checkoutError))
		return
	}

	if mergeError := service.repositoryManager.PullUnrelated(executionContext, report.OutputPath, outcome.workingPath, grabbedBranch); mergeError != nil {
		service.recordWarning(report, repositoryName, StageBranchMerge, fmt.Sprintf(branchMergeWarningTemplateConstant, grabbedBranch, mergeError))
	}

	if returnError := service.repositoryManager.CheckoutBranch(executionContext, report.OutputPath, mergePlan.PrimaryBranch); returnError != nil {
		service.recordWarning(report, repositoryName, StageBranchMerge, fmt.Sprintf(branchReturnWarningTemplateConstant, mergePlan.PrimaryBranch, returnError))
	}
}

// compactRepository drops rewrite backup references, expires the reflog, and
// runs an aggressive garbage collection pass. Each sub-step degrades to a
// warning independently.
func (service *Service) compactRepository(executionContext context.Context, report *RunReport) {
	report.CompactionPerformed = true

	deletionDirectives, listError := service.repositoryManager.ListRewriteBackupReferences(executionContext, report.OutputPath)
	if listError != nil {
		service.recordWarning(report, "", StageCompaction, fmt.Sprintf(referenceListWarningTemplateConstant, listError))
	} else if len(strings.TrimSpace(deletionDirectives)) > 0 {
		if deletionError := service.repositoryManager.DeleteReferences(executionContext, report.OutputPath, deletionDirectives); deletionError != nil {
			service.recordWarning(report, "", StageCompaction, fmt.Sprintf(referenceDeleteWarningTemplateConstant, deletionError))
		}
	}

	if expireError := service.repositoryManager.ExpireReflog(executionContext, report.OutputPath); expireError != nil {
		service.recordWarning(report, "", StageCompaction, fmt.Sprintf(reflogExpireWarningTemplateConstant, expireError))
	}
	if garbageError := service.repositoryManager.CollectGarbage(executionContext, report.OutputPath); garbageError != nil {
		service.recordWarning(report, "", StageCompaction, fmt.Sprintf(garbageCollectWarningTemplateConstant, garbageError))
	}
}

func (service *Service) measureDiskUsage(executionContext context.Context, report *RunReport) {
	if service.diskUsageExecutor == nil {
		return
	}
	executionResult, usageError := service.diskUsageExecutor.ExecuteDiskUsage(executionContext, execshell.CommandDetails{
		Arguments: []string{diskUsageHumanReadableFlagConstant, report.OutputPath},
	})
	if usageError != nil {
		service.recordWarning(report, "", StageSummary, fmt.Sprintf(diskUsageWarningTemplateConstant, usageError))
		return
	}
	usageFields := strings.Fields(executionResult.StandardOutput)
	if len(usageFields) > 0 {
		report.DiskUsage = usageFields[0]
	}
}

func (service *Service) recordWarning(report *RunReport, repositoryName string, stage Stage, message string) {
	report.Warnings = append(report.Warnings, Warning{Repository: repositoryName, Stage: stage, Message: message})
	service.logger.Warn(warningLogMessageConstant,
		zap.String(repositoryNameLogFieldConstant, repositoryName),
		zap.String(warningStageLogFieldConstant, string(stage)),
		zap.String(warningMessageLogFieldConstant, message),
	)
}
