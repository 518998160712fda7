package merge_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/temirov/repofold/internal/execshell"
	"github.com/temirov/repofold/internal/gitrepo"
	"github.com/temirov/repofold/internal/merge"
)

const (
	alphaRepositoryURLConstant = "https://example.com/alpha.git"
	betaRepositoryURLConstant  = "https://example.com/beta.git"
	outputRepositoryName       = "merged"
)

type scriptedShellExecutor struct {
	mutex            sync.Mutex
	recordedCommands []string
	scriptedResults  map[string]execshell.ExecutionResult
	scriptedErrors   map[string]error
	seededCloneFiles map[string]string
}

func newScriptedShellExecutor() *scriptedShellExecutor {
	return &scriptedShellExecutor{
		scriptedResults:  map[string]execshell.ExecutionResult{},
		scriptedErrors:   map[string]error{},
		seededCloneFiles: map[string]string{},
	}
}

func (executor *scriptedShellExecutor) execute(details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.mutex.Lock()
	defer executor.mutex.Unlock()
	joinedArguments := strings.Join(details.Arguments, " ")
	executor.recordedCommands = append(executor.recordedCommands, joinedArguments)
	if len(details.Arguments) >= 3 && details.Arguments[0] == "clone" {
		if seedError := executor.seedCloneWorkingTree(details.Arguments[2]); seedError != nil {
			return execshell.ExecutionResult{}, seedError
		}
	}
	for scriptedFragment, scriptedError := range executor.scriptedErrors {
		if strings.Contains(joinedArguments, scriptedFragment) {
			return execshell.ExecutionResult{}, scriptedError
		}
	}
	for scriptedFragment, scriptedResult := range executor.scriptedResults {
		if strings.Contains(joinedArguments, scriptedFragment) {
			return scriptedResult, nil
		}
	}
	return execshell.ExecutionResult{}, nil
}

// seedCloneWorkingTree writes the configured files into a clone destination so
// pipeline steps that read the working tree observe real contents.
func (executor *scriptedShellExecutor) seedCloneWorkingTree(destinationPath string) error {
	if len(executor.seededCloneFiles) == 0 {
		return nil
	}
	if directoryError := os.MkdirAll(destinationPath, 0o755); directoryError != nil {
		return directoryError
	}
	for seededFileName, seededFileContents := range executor.seededCloneFiles {
		if writeError := os.WriteFile(filepath.Join(destinationPath, seededFileName), []byte(seededFileContents), 0o644); writeError != nil {
			return writeError
		}
	}
	return nil
}

func (executor *scriptedShellExecutor) ExecuteGit(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return executor.execute(details)
}

func (executor *scriptedShellExecutor) ExecuteDiskUsage(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return executor.execute(details)
}

func (executor *scriptedShellExecutor) commandIndex(testInstance *testing.T, commandFragment string) int {
	testInstance.Helper()
	executor.mutex.Lock()
	defer executor.mutex.Unlock()
	for commandPosition, recordedCommand := range executor.recordedCommands {
		if strings.Contains(recordedCommand, commandFragment) {
			return commandPosition
		}
	}
	return -1
}

func (executor *scriptedShellExecutor) commandCount(testInstance *testing.T, commandFragment string) int {
	testInstance.Helper()
	executor.mutex.Lock()
	defer executor.mutex.Unlock()
	matchCount := 0
	for _, recordedCommand := range executor.recordedCommands {
		if strings.Contains(recordedCommand, commandFragment) {
			matchCount++
		}
	}
	return matchCount
}

func newMergeService(testInstance *testing.T, executor *scriptedShellExecutor) *merge.Service {
	testInstance.Helper()
	repositoryManager, managerError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, managerError)
	mergeService, serviceError := merge.NewService(merge.ServiceDependencies{
		Logger:            zap.NewNop(),
		RepositoryManager: repositoryManager,
		DiskUsageExecutor: executor,
	})
	require.NoError(testInstance, serviceError)
	return mergeService
}

func buildMergePlan() merge.MergePlan {
	return merge.MergePlan{
		PrimaryBranch: "trunk",
		Repositories: []merge.RepositorySpec{
			{
				Name:          "alpha",
				URL:           alphaRepositoryURLConstant,
				DefaultBranch: "master",
				Subdirectory:  "services/alpha",
				FilterPaths:   []string{"src", "docs"},
				BranchesToGrab: []merge.BranchGrab{
					{RemoteURL: "https://example.com/alpha-fork.git", Branch: "feature"},
				},
			},
			{
				Name:          "beta",
				URL:           betaRepositoryURLConstant,
				DefaultBranch: "main",
			},
		},
		FinalRemote: &merge.RemoteSpec{Name: "origin", URL: "git@example.com:merged.git"},
	}
}

func buildPreservePlan() merge.MergePlan {
	return merge.MergePlan{
		PrimaryBranch: "trunk",
		Repositories: []merge.RepositorySpec{
			{
				Name:          "gamma",
				URL:           "https://example.com/gamma.git",
				DefaultBranch: "master",
				FilterPaths:   []string{"docs"},
				PreserveFiles: []string{"README.md"},
			},
		},
	}
}

func buildRunOptions(testInstance *testing.T) merge.RunOptions {
	testInstance.Helper()
	return merge.RunOptions{
		OutputName:                outputRepositoryName,
		BaseDirectory:             testInstance.TempDir(),
		TemporaryDirectory:        testInstance.TempDir(),
		TransformWorkers:          1,
		RunGarbageCollection:      true,
		WriteLargeObjectReport:    true,
		LargeObjectThresholdBytes: 100,
	}
}

func TestServiceRunExecutesFullPipeline(testInstance *testing.T) {
	executor := newScriptedShellExecutor()
	executor.scriptedResults["for-each-ref"] = execshell.ExecutionResult{StandardOutput: "delete refs/original/refs/heads/trunk\n"}
	executor.scriptedResults["rev-list --objects --all"] = execshell.ExecutionResult{
		StandardOutput: "1111111111111111111111111111111111111111 services/alpha/asset.bin\n2222222222222222222222222222222222222222 services/alpha/note.txt\n",
	}
	executor.scriptedResults["cat-file --batch-all-objects"] = execshell.ExecutionResult{
		StandardOutput: "1111111111111111111111111111111111111111 blob 4096\n2222222222222222222222222222222222222222 blob 12\n",
	}
	executor.scriptedResults["-sh"] = execshell.ExecutionResult{StandardOutput: "12M\t/tmp/output\n"}

	mergeService := newMergeService(testInstance, executor)
	runOptions := buildRunOptions(testInstance)

	runReport, runError := mergeService.Run(context.Background(), buildMergePlan(), runOptions)
	require.NoError(testInstance, runError)

	require.Equal(testInstance, []string{"alpha", "beta"}, runReport.MergedRepositories)
	require.Empty(testInstance, runReport.FailedRepositories)
	require.Empty(testInstance, runReport.Warnings)
	require.True(testInstance, runReport.CompactionPerformed)
	require.Equal(testInstance, "12M", runReport.DiskUsage)
	require.Equal(testInstance, filepath.Join(runOptions.BaseDirectory, outputRepositoryName), runReport.OutputPath)

	initializationIndex := executor.commandIndex(testInstance, "init --initial-branch trunk")
	require.GreaterOrEqual(testInstance, initializationIndex, 0)

	filterIndex := executor.commandIndex(testInstance, "filter-repo --path src --path docs --force")
	relocationIndex := executor.commandIndex(testInstance, "filter-repo --to-subdirectory-filter services/alpha --force")
	require.GreaterOrEqual(testInstance, filterIndex, 0)
	require.Greater(testInstance, relocationIndex, filterIndex)

	grabRemoteIndex := executor.commandIndex(testInstance, "remote add grab https://example.com/alpha-fork.git")
	grabFetchIndex := executor.commandIndex(testInstance, "fetch grab feature")
	grabBranchIndex := executor.commandIndex(testInstance, "branch feature grab/feature")
	grabCleanupIndex := executor.commandIndex(testInstance, "remote rm grab")
	require.GreaterOrEqual(testInstance, grabRemoteIndex, 0)
	require.Greater(testInstance, grabFetchIndex, grabRemoteIndex)
	require.Greater(testInstance, grabBranchIndex, grabFetchIndex)
	require.Greater(testInstance, grabCleanupIndex, grabBranchIndex)

	alphaMergeIndex := executor.commandIndex(testInstance, "alpha master --allow-unrelated-histories")
	betaMergeIndex := executor.commandIndex(testInstance, "beta main --allow-unrelated-histories")
	require.GreaterOrEqual(testInstance, alphaMergeIndex, 0)
	require.Greater(testInstance, betaMergeIndex, alphaMergeIndex)

	branchMergeIndex := executor.commandIndex(testInstance, "alpha feature --allow-unrelated-histories")
	require.Greater(testInstance, branchMergeIndex, alphaMergeIndex)
	require.Less(testInstance, branchMergeIndex, betaMergeIndex)

	finalRemoteIndex := executor.commandIndex(testInstance, "remote add origin git@example.com:merged.git")
	referenceDeletionIndex := executor.commandIndex(testInstance, "update-ref --stdin")
	reflogIndex := executor.commandIndex(testInstance, "reflog expire --expire=now --all")
	garbageIndex := executor.commandIndex(testInstance, "gc --prune=now --aggressive")
	require.Greater(testInstance, finalRemoteIndex, betaMergeIndex)
	require.Greater(testInstance, referenceDeletionIndex, finalRemoteIndex)
	require.Greater(testInstance, reflogIndex, referenceDeletionIndex)
	require.Greater(testInstance, garbageIndex, reflogIndex)

	reportContents, readError := os.ReadFile(runReport.ReportFilePath)
	require.NoError(testInstance, readError)
	reportText := string(reportContents)
	require.Contains(testInstance, reportText, "size\tobject\tpath")
	require.Contains(testInstance, reportText, "4096\t1111111111111111111111111111111111111111\tservices/alpha/asset.bin")
	require.NotContains(testInstance, reportText, "2222222222222222222222222222222222222222")
}

func TestServiceRunRecordsMergeFailureAndSkipsBranchMerges(testInstance *testing.T) {
	executor := newScriptedShellExecutor()
	executor.scriptedErrors["alpha master --allow-unrelated-histories"] = execshell.CommandFailedError{
		Command: execshell.ShellCommand{Name: execshell.CommandGit},
		Result:  execshell.ExecutionResult{ExitCode: 128, StandardError: "fatal: refusing to merge"},
	}

	mergeService := newMergeService(testInstance, executor)

	runReport, runError := mergeService.Run(context.Background(), buildMergePlan(), buildRunOptions(testInstance))
	require.NoError(testInstance, runError)

	require.Equal(testInstance, []string{"beta"}, runReport.MergedRepositories)
	require.Equal(testInstance, []string{"alpha"}, runReport.FailedRepositories)
	require.NotEmpty(testInstance, runReport.Warnings)
	require.Equal(testInstance, merge.StageMerge, runReport.Warnings[0].Stage)
	require.Equal(testInstance, "alpha", runReport.Warnings[0].Repository)

	require.Equal(testInstance, -1, executor.commandIndex(testInstance, "rev-parse --verify --quiet refs/heads/feature"))
	require.Equal(testInstance, -1, executor.commandIndex(testInstance, "alpha feature --allow-unrelated-histories"))
}

func TestServiceRunFailsWhenCloneFails(testInstance *testing.T) {
	executor := newScriptedShellExecutor()
	executor.scriptedErrors["clone "+alphaRepositoryURLConstant] = execshell.CommandFailedError{
		Command: execshell.ShellCommand{Name: execshell.CommandGit},
		Result:  execshell.ExecutionResult{ExitCode: 128, StandardError: "fatal: repository not found"},
	}

	mergeService := newMergeService(testInstance, executor)

	_, runError := mergeService.Run(context.Background(), buildMergePlan(), buildRunOptions(testInstance))
	require.Error(testInstance, runError)
	acquireError := &merge.AcquireError{}
	require.ErrorAs(testInstance, runError, &acquireError)
	require.Equal(testInstance, "alpha", acquireError.RepositoryName)
}

func TestServiceRunFailsWhenHistoryRewriteToolMissing(testInstance *testing.T) {
	executor := newScriptedShellExecutor()
	executor.scriptedErrors["filter-repo --version"] = execshell.CommandExecutionError{
		Command: execshell.ShellCommand{Name: execshell.CommandGit},
		Cause:   os.ErrNotExist,
	}

	mergeService := newMergeService(testInstance, executor)

	_, runError := mergeService.Run(context.Background(), buildMergePlan(), buildRunOptions(testInstance))
	require.Error(testInstance, runError)
	toolError := &merge.ToolError{}
	require.ErrorAs(testInstance, runError, &toolError)
}

func TestServiceRunFailsWhenFilterFails(testInstance *testing.T) {
	executor := newScriptedShellExecutor()
	executor.scriptedErrors["filter-repo --path src"] = execshell.CommandFailedError{
		Command: execshell.ShellCommand{Name: execshell.CommandGit},
		Result:  execshell.ExecutionResult{ExitCode: 1, StandardError: "fatal: bad rewrite"},
	}

	mergeService := newMergeService(testInstance, executor)

	_, runError := mergeService.Run(context.Background(), buildMergePlan(), buildRunOptions(testInstance))
	require.Error(testInstance, runError)
	transformError := &merge.TransformError{}
	require.ErrorAs(testInstance, runError, &transformError)
	require.Equal(testInstance, merge.StageFilter, transformError.Stage)
}

func TestServiceRunRestoresPreservedFilesWithSingleCommit(testInstance *testing.T) {
	executor := newScriptedShellExecutor()
	executor.seededCloneFiles["README.md"] = "# gamma\n"
	executor.scriptedResults["status --porcelain"] = execshell.ExecutionResult{StandardOutput: "A  README.md\n"}

	mergeService := newMergeService(testInstance, executor)
	runOptions := buildRunOptions(testInstance)
	runOptions.RunGarbageCollection = false
	runOptions.WriteLargeObjectReport = false

	runReport, runError := mergeService.Run(context.Background(), buildPreservePlan(), runOptions)
	require.NoError(testInstance, runError)
	require.Equal(testInstance, []string{"gamma"}, runReport.MergedRepositories)
	require.Empty(testInstance, runReport.Warnings)

	filterIndex := executor.commandIndex(testInstance, "filter-repo --path docs --force")
	stageIndex := executor.commandIndex(testInstance, "add README.md")
	statusIndex := executor.commandIndex(testInstance, "status --porcelain")
	commitIndex := executor.commandIndex(testInstance, "commit -m Restore preserved files")
	mergeIndex := executor.commandIndex(testInstance, "gamma master --allow-unrelated-histories")
	require.GreaterOrEqual(testInstance, filterIndex, 0)
	require.Greater(testInstance, stageIndex, filterIndex)
	require.Greater(testInstance, statusIndex, stageIndex)
	require.Greater(testInstance, commitIndex, statusIndex)
	require.Greater(testInstance, mergeIndex, commitIndex)
	require.Equal(testInstance, 1, executor.commandCount(testInstance, "commit -m Restore preserved files"))
}

func TestServiceRunSkipsRestoreCommitWhenTreeUnchanged(testInstance *testing.T) {
	executor := newScriptedShellExecutor()
	executor.seededCloneFiles["README.md"] = "# gamma\n"

	mergeService := newMergeService(testInstance, executor)
	runOptions := buildRunOptions(testInstance)
	runOptions.RunGarbageCollection = false
	runOptions.WriteLargeObjectReport = false

	runReport, runError := mergeService.Run(context.Background(), buildPreservePlan(), runOptions)
	require.NoError(testInstance, runError)
	require.Equal(testInstance, []string{"gamma"}, runReport.MergedRepositories)
	require.Empty(testInstance, runReport.Warnings)

	require.GreaterOrEqual(testInstance, executor.commandIndex(testInstance, "add README.md"), 0)
	require.GreaterOrEqual(testInstance, executor.commandIndex(testInstance, "status --porcelain"), 0)
	require.Equal(testInstance, 0, executor.commandCount(testInstance, "commit -m Restore preserved files"))
}

func TestServiceRunParallelMatchesSequential(testInstance *testing.T) {
	defer goleak.VerifyNone(testInstance)

	sequentialExecutor := newScriptedShellExecutor()
	sequentialService := newMergeService(testInstance, sequentialExecutor)
	sequentialOptions := buildRunOptions(testInstance)
	sequentialOptions.WriteLargeObjectReport = false
	sequentialReport, sequentialError := sequentialService.Run(context.Background(), buildMergePlan(), sequentialOptions)
	require.NoError(testInstance, sequentialError)

	parallelExecutor := newScriptedShellExecutor()
	parallelService := newMergeService(testInstance, parallelExecutor)
	parallelOptions := buildRunOptions(testInstance)
	parallelOptions.WriteLargeObjectReport = false
	parallelOptions.TransformWorkers = 3
	parallelReport, parallelError := parallelService.Run(context.Background(), buildMergePlan(), parallelOptions)
	require.NoError(testInstance, parallelError)

	require.Equal(testInstance, sequentialReport.MergedRepositories, parallelReport.MergedRepositories)
	require.Equal(testInstance, sequentialReport.FailedRepositories, parallelReport.FailedRepositories)
	require.Equal(testInstance, sequentialReport.Warnings, parallelReport.Warnings)
}

func TestServiceRunRejectsInvalidOutputName(testInstance *testing.T) {
	mergeService := newMergeService(testInstance, newScriptedShellExecutor())
	runOptions := buildRunOptions(testInstance)
	runOptions.OutputName = "nested/name"

	_, runError := mergeService.Run(context.Background(), buildMergePlan(), runOptions)
	require.Error(testInstance, runError)
	planError := &merge.PlanError{}
	require.ErrorAs(testInstance, runError, &planError)
}
