package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/temirov/repofold/internal/execshell"
)

const (
	commandExecutorMissingMessageConstant = "git executor not configured"

	cloneCommandNameConstant             = "clone"
	initCommandNameConstant              = "init"
	initialBranchFlagConstant            = "--initial-branch"
	resetCommandNameConstant             = "reset"
	hardResetFlagConstant                = "--hard"
	remoteCommandNameConstant            = "remote"
	remoteAddSubcommandConstant          = "add"
	remoteRemoveSubcommandConstant       = "rm"
	fetchCommandNameConstant             = "fetch"
	branchCommandNameConstant            = "branch"
	branchForceFlagConstant              = "-f"
	checkoutCommandNameConstant          = "checkout"
	checkoutNewBranchFlagConstant        = "-b"
	pullCommandNameConstant              = "pull"
	allowUnrelatedHistoriesFlagConstant  = "--allow-unrelated-histories"
	noEditFlagConstant                   = "--no-edit"
	filterRepoCommandNameConstant        = "filter-repo"
	filterRepoPathFlagConstant           = "--path"
	filterRepoInvertPathsFlagConstant    = "--invert-paths"
	filterRepoSubdirectoryFlagConstant   = "--to-subdirectory-filter"
	filterRepoForceFlagConstant          = "--force"
	filterRepoVersionFlagConstant        = "--version"
	addCommandNameConstant               = "add"
	commitCommandNameConstant            = "commit"
	commitMessageFlagConstant            = "-m"
	statusCommandNameConstant            = "status"
	statusPorcelainFlagConstant          = "--porcelain"
	revParseCommandNameConstant          = "rev-parse"
	revParseVerifyFlagConstant           = "--verify"
	revParseQuietFlagConstant            = "--quiet"
	branchReferencePrefixConstant        = "refs/heads/"
	forEachRefCommandNameConstant        = "for-each-ref"
	forEachRefDeleteFormatConstant       = "--format=delete %(refname)"
	rewriteBackupReferencePrefixConstant = "refs/original"
	updateRefCommandNameConstant         = "update-ref"
	updateRefStdinFlagConstant           = "--stdin"
	reflogCommandNameConstant            = "reflog"
	reflogExpireSubcommandConstant       = "expire"
	reflogExpireNowFlagConstant          = "--expire=now"
	reflogAllFlagConstant                = "--all"
	garbageCollectCommandNameConstant    = "gc"
	garbageCollectPruneNowFlagConstant   = "--prune=now"
	garbageCollectAggressiveFlagConstant = "--aggressive"
	revListCommandNameConstant           = "rev-list"
	revListObjectsFlagConstant           = "--objects"
	revListAllFlagConstant               = "--all"
	catFileCommandNameConstant           = "cat-file"
	catFileBatchAllObjectsFlagConstant   = "--batch-all-objects"
	catFileBatchCheckFlagConstant        = "--batch-check=%(objectname) %(objecttype) %(objectsize)"
	versionCommandNameConstant           = "version"

	cloneErrorTemplateConstant             = "unable to clone %s: %w"
	initializeErrorTemplateConstant        = "unable to initialize repository at %s: %w"
	hardResetErrorTemplateConstant         = "unable to reset %s to %s: %w"
	addRemoteErrorTemplateConstant         = "unable to add remote %s: %w"
	removeRemoteErrorTemplateConstant      = "unable to remove remote %s: %w"
	fetchBranchErrorTemplateConstant       = "unable to fetch %s from %s: %w"
	createBranchErrorTemplateConstant      = "unable to create branch %s: %w"
	checkoutBranchErrorTemplateConstant    = "unable to check out %s: %w"
	pullErrorTemplateConstant              = "unable to merge %s from %s: %w"
	filterPathsErrorTemplateConstant       = "unable to filter history of %s: %w"
	relocateErrorTemplateConstant          = "unable to relocate history of %s: %w"
	stagePathErrorTemplateConstant         = "unable to stage %s: %w"
	commitErrorTemplateConstant            = "unable to commit in %s: %w"
	statusErrorTemplateConstant            = "unable to read status of %s: %w"
	listReferencesErrorTemplateConstant    = "unable to list rewrite backup references in %s: %w"
	deleteReferencesErrorTemplateConstant  = "unable to delete references in %s: %w"
	expireReflogErrorTemplateConstant      = "unable to expire reflog in %s: %w"
	garbageCollectErrorTemplateConstant    = "unable to collect garbage in %s: %w"
	listObjectsErrorTemplateConstant       = "unable to list objects in %s: %w"
	batchCheckObjectsErrorTemplateConstant = "unable to inspect objects in %s: %w"
	gitUnavailableErrorTemplateConstant    = "git is not available: %w"
	filterRepoUnavailableTemplateConstant  = "git filter-repo is not available: %w"
)

var errCommandExecutorMissing = errors.New(commandExecutorMissingMessageConstant)

// CommandExecutor abstracts the shell executor consumed by RepositoryManager.
type CommandExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// RepositoryManager performs git operations for the merge orchestrator.
type RepositoryManager struct {
	executor CommandExecutor
}

// NewRepositoryManager constructs a RepositoryManager backed by the provided executor.
func NewRepositoryManager(executor CommandExecutor) (*RepositoryManager, error) {
	if executor == nil {
		return nil, errCommandExecutorMissing
	}
	return &RepositoryManager{executor: executor}, nil
}

// CheckGitAvailable verifies the git binary responds to a version probe.
func (manager *RepositoryManager) CheckGitAvailable(executionContext context.Context) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments: []string{versionCommandNameConstant},
	})
	if executionError != nil {
		return fmt.Errorf(gitUnavailableErrorTemplateConstant, executionError)
	}
	return nil
}

// CheckFilterRepoAvailable verifies the filter-repo extension responds to a version probe.
func (manager *RepositoryManager) CheckFilterRepoAvailable(executionContext context.Context) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments: []string{filterRepoCommandNameConstant, filterRepoVersionFlagConstant},
	})
	if executionError != nil {
		return fmt.Errorf(filterRepoUnavailableTemplateConstant, executionError)
	}
	return nil
}

// CloneRepository clones sourceURL into destinationPath.
func (manager *RepositoryManager) CloneRepository(executionContext context.Context, sourceURL string, destinationPath string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments: []string{cloneCommandNameConstant, sourceURL, destinationPath},
	})
	if executionError != nil {
		return fmt.Errorf(cloneErrorTemplateConstant, sourceURL, executionError)
	}
	return nil
}

// InitializeRepository creates an empty repository at repositoryPath with the given initial branch.
func (manager *RepositoryManager) InitializeRepository(executionContext context.Context, repositoryPath string, initialBranch string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{initCommandNameConstant, initialBranchFlagConstant, initialBranch},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(initializeErrorTemplateConstant, repositoryPath, executionError)
	}
	return nil
}

// HardReset points the working tree at the provided reference, discarding local divergence.
func (manager *RepositoryManager) HardReset(executionContext context.Context, repositoryPath string, reference string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{resetCommandNameConstant, hardResetFlagConstant, reference},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(hardResetErrorTemplateConstant, repositoryPath, reference, executionError)
	}
	return nil
}

// AddRemote registers a named remote on the repository.
func (manager *RepositoryManager) AddRemote(executionContext context.Context, repositoryPath string, remoteName string, remoteURL string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{remoteCommandNameConstant, remoteAddSubcommandConstant, remoteName, remoteURL},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(addRemoteErrorTemplateConstant, remoteName, executionError)
	}
	return nil
}

// RemoveRemote deletes a named remote from the repository.
func (manager *RepositoryManager) RemoveRemote(executionContext context.Context, repositoryPath string, remoteName string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{remoteCommandNameConstant, remoteRemoveSubcommandConstant, remoteName},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(removeRemoteErrorTemplateConstant, remoteName, executionError)
	}
	return nil
}

// FetchBranch fetches a single branch from the named remote.
func (manager *RepositoryManager) FetchBranch(executionContext context.Context, repositoryPath string, remoteName string, branchName string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{fetchCommandNameConstant, remoteName, branchName},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(fetchBranchErrorTemplateConstant, branchName, remoteName, executionError)
	}
	return nil
}

// CreateBranch creates branchName pointing at startPoint, force-updating when it already exists.
func (manager *RepositoryManager) CreateBranch(executionContext context.Context, repositoryPath string, branchName string, startPoint string) error {
	_, creationError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{branchCommandNameConstant, branchName, startPoint},
		WorkingDirectory: repositoryPath,
	})
	if creationError == nil {
		return nil
	}

	_, forceUpdateError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{branchCommandNameConstant, branchForceFlagConstant, branchName, startPoint},
		WorkingDirectory: repositoryPath,
	})
	if forceUpdateError != nil {
		return fmt.Errorf(createBranchErrorTemplateConstant, branchName, forceUpdateError)
	}
	return nil
}

// BranchExists reports whether a local branch with the given name exists.
func (manager *RepositoryManager) BranchExists(executionContext context.Context, repositoryPath string, branchName string) (bool, error) {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{revParseCommandNameConstant, revParseVerifyFlagConstant, revParseQuietFlagConstant, branchReferencePrefixConstant + branchName},
		WorkingDirectory: repositoryPath,
	})
	if executionError == nil {
		return true, nil
	}

	failedError := execshell.CommandFailedError{}
	if errors.As(executionError, &failedError) {
		return false, nil
	}
	return false, executionError
}

// CheckoutBranch switches the working tree to an existing branch.
func (manager *RepositoryManager) CheckoutBranch(executionContext context.Context, repositoryPath string, branchName string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{checkoutCommandNameConstant, branchName},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(checkoutBranchErrorTemplateConstant, branchName, executionError)
	}
	return nil
}

// CheckoutNewBranch creates and switches to a new branch.
func (manager *RepositoryManager) CheckoutNewBranch(executionContext context.Context, repositoryPath string, branchName string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{checkoutCommandNameConstant, checkoutNewBranchFlagConstant, branchName},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(checkoutBranchErrorTemplateConstant, branchName, executionError)
	}
	return nil
}

// PullUnrelated merges a branch from another repository location, allowing unrelated histories.
func (manager *RepositoryManager) PullUnrelated(executionContext context.Context, repositoryPath string, sourceLocation string, branchName string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{pullCommandNameConstant, sourceLocation, branchName, allowUnrelatedHistoriesFlagConstant, noEditFlagConstant},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(pullErrorTemplateConstant, branchName, sourceLocation, executionError)
	}
	return nil
}

// FilterHistoryPaths rewrites the repository history so only the supplied paths survive.
// With invertSelection set, the supplied paths are removed instead.
func (manager *RepositoryManager) FilterHistoryPaths(executionContext context.Context, repositoryPath string, filterPaths []string, invertSelection bool) error {
	arguments := []string{filterRepoCommandNameConstant}
	for _, filterPath := range filterPaths {
		arguments = append(arguments, filterRepoPathFlagConstant, filterPath)
	}
	if invertSelection {
		arguments = append(arguments, filterRepoInvertPathsFlagConstant)
	}
	arguments = append(arguments, filterRepoForceFlagConstant)

	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(filterPathsErrorTemplateConstant, repositoryPath, executionError)
	}
	return nil
}

// RelocateToSubdirectory rewrites the repository history so every path gains the subdirectory prefix.
func (manager *RepositoryManager) RelocateToSubdirectory(executionContext context.Context, repositoryPath string, subdirectory string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{filterRepoCommandNameConstant, filterRepoSubdirectoryFlagConstant, subdirectory, filterRepoForceFlagConstant},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(relocateErrorTemplateConstant, repositoryPath, executionError)
	}
	return nil
}

// StagePath stages a path in the repository index.
func (manager *RepositoryManager) StagePath(executionContext context.Context, repositoryPath string, targetPath string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{addCommandNameConstant, targetPath},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(stagePathErrorTemplateConstant, targetPath, executionError)
	}
	return nil
}

// WorkingTreeChanged reports whether the working tree differs from HEAD.
func (manager *RepositoryManager) WorkingTreeChanged(executionContext context.Context, repositoryPath string) (bool, error) {
	executionResult, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{statusCommandNameConstant, statusPorcelainFlagConstant},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return false, fmt.Errorf(statusErrorTemplateConstant, repositoryPath, executionError)
	}
	return len(strings.TrimSpace(executionResult.StandardOutput)) > 0, nil
}

// CreateCommit records a commit with the provided message.
func (manager *RepositoryManager) CreateCommit(executionContext context.Context, repositoryPath string, message string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{commitCommandNameConstant, commitMessageFlagConstant, message},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(commitErrorTemplateConstant, repositoryPath, executionError)
	}
	return nil
}

// ListRewriteBackupReferences returns update-ref deletion directives for refs left behind by history rewrites.
func (manager *RepositoryManager) ListRewriteBackupReferences(executionContext context.Context, repositoryPath string) (string, error) {
	executionResult, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{forEachRefCommandNameConstant, forEachRefDeleteFormatConstant, rewriteBackupReferencePrefixConstant},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return "", fmt.Errorf(listReferencesErrorTemplateConstant, repositoryPath, executionError)
	}
	return executionResult.StandardOutput, nil
}

// DeleteReferences feeds update-ref deletion directives to git on standard input.
func (manager *RepositoryManager) DeleteReferences(executionContext context.Context, repositoryPath string, deletionDirectives string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{updateRefCommandNameConstant, updateRefStdinFlagConstant},
		WorkingDirectory: repositoryPath,
		StandardInput:    []byte(deletionDirectives),
	})
	if executionError != nil {
		return fmt.Errorf(deleteReferencesErrorTemplateConstant, repositoryPath, executionError)
	}
	return nil
}

// ExpireReflog removes every reflog entry immediately.
func (manager *RepositoryManager) ExpireReflog(executionContext context.Context, repositoryPath string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{reflogCommandNameConstant, reflogExpireSubcommandConstant, reflogExpireNowFlagConstant, reflogAllFlagConstant},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(expireReflogErrorTemplateConstant, repositoryPath, executionError)
	}
	return nil
}

// CollectGarbage runs an aggressive garbage collection pass, pruning unreachable objects immediately.
func (manager *RepositoryManager) CollectGarbage(executionContext context.Context, repositoryPath string) error {
	_, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{garbageCollectCommandNameConstant, garbageCollectPruneNowFlagConstant, garbageCollectAggressiveFlagConstant},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return fmt.Errorf(garbageCollectErrorTemplateConstant, repositoryPath, executionError)
	}
	return nil
}

// ListAllObjects returns the raw object-to-path listing for every reachable object.
func (manager *RepositoryManager) ListAllObjects(executionContext context.Context, repositoryPath string) (string, error) {
	executionResult, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{revListCommandNameConstant, revListObjectsFlagConstant, revListAllFlagConstant},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return "", fmt.Errorf(listObjectsErrorTemplateConstant, repositoryPath, executionError)
	}
	return executionResult.StandardOutput, nil
}

// BatchCheckAllObjects returns name, type, and size lines for every object in the repository.
func (manager *RepositoryManager) BatchCheckAllObjects(executionContext context.Context, repositoryPath string) (string, error) {
	executionResult, executionError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{catFileCommandNameConstant, catFileBatchAllObjectsFlagConstant, catFileBatchCheckFlagConstant},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return "", fmt.Errorf(batchCheckObjectsErrorTemplateConstant, repositoryPath, executionError)
	}
	return executionResult.StandardOutput, nil
}
