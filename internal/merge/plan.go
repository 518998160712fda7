package merge

import (
	"fmt"
	"strings"

	pathutils "github.com/temirov/repofold/internal/utils/path"
)

const (
	defaultBranchNameConstant                    = "master"
	missingRepositoriesMessageConstant           = "plan declares no repositories"
	missingRepositoryNameTemplateConstant        = "repository entry %d has no name"
	invalidRepositoryNameMessageTemplateConstant = "repository name %q is not a valid directory name"
	duplicateRepositoryNameTemplateConstant      = "repository name %q appears more than once"
	missingRepositoryURLTemplateConstant         = "repository %q has no url"
	invalidSubdirectoryMessageTemplateConstant   = "repository %q subdirectory %q is not a valid relative path"
	incompleteBranchGrabMessageTemplateConstant  = "repository %q declares a branch grab without both remote_url and branch"
	invalidFilterPathsMessageTemplateConstant    = "repository %q filter_paths are invalid: %v"
	invalidPreserveFilesMessageTemplateConstant  = "repository %q preserve_files are invalid: %v"
	incompleteFinalRemoteMessageConstant         = "final_remote requires both name and url"
)

// BranchGrab names an additional branch fetched from a remote before a repository is merged.
type BranchGrab struct {
	RemoteURL string `yaml:"remote_url" toml:"remote_url"`
	Branch    string `yaml:"branch" toml:"branch"`
}

// RemoteSpec names a remote added to the merged repository once the merge completes.
type RemoteSpec struct {
	Name string `yaml:"name" toml:"name"`
	URL  string `yaml:"url" toml:"url"`
}

// RepositorySpec describes one source repository and the history rewrites applied to it.
type RepositorySpec struct {
	Name           string       `yaml:"name" toml:"name"`
	URL            string       `yaml:"url" toml:"url"`
	DefaultBranch  string       `yaml:"default_branch" toml:"default_branch"`
	Subdirectory   string       `yaml:"subdirectory" toml:"subdirectory"`
	FilterPaths    []string     `yaml:"filter_paths" toml:"filter_paths"`
	InvertPaths    bool         `yaml:"invert_paths" toml:"invert_paths"`
	BranchesToGrab []BranchGrab `yaml:"branches_to_grab" toml:"branches_to_grab"`
	ResetToBranch  string       `yaml:"reset_to_branch" toml:"reset_to_branch"`
	PreserveFiles  []string     `yaml:"preserve_files" toml:"preserve_files"`
}

// RequiresHistoryRewrite reports whether the repository needs git filter-repo.
func (repositorySpec RepositorySpec) RequiresHistoryRewrite() bool {
	return len(repositorySpec.FilterPaths) > 0 || len(repositorySpec.Subdirectory) > 0
}

// MergePlan declares the repositories folded into one output repository.
type MergePlan struct {
	PrimaryBranch string           `yaml:"primary_branch" toml:"primary_branch"`
	Repositories  []RepositorySpec `yaml:"repositories" toml:"repositories"`
	FinalRemote   *RemoteSpec      `yaml:"final_remote" toml:"final_remote"`
}

// RequiresHistoryRewrite reports whether any repository in the plan needs git filter-repo.
func (mergePlan MergePlan) RequiresHistoryRewrite() bool {
	for _, repositorySpec := range mergePlan.Repositories {
		if repositorySpec.RequiresHistoryRewrite() {
			return true
		}
	}
	return false
}

func (mergePlan *MergePlan) applyDefaults() {
	if len(mergePlan.PrimaryBranch) == 0 {
		mergePlan.PrimaryBranch = defaultBranchNameConstant
	}
	for repositoryIndex := range mergePlan.Repositories {
		if len(mergePlan.Repositories[repositoryIndex].DefaultBranch) == 0 {
			mergePlan.Repositories[repositoryIndex].DefaultBranch = defaultBranchNameConstant
		}
	}
}

func (mergePlan *MergePlan) normalize() error {
	mergePlan.applyDefaults()
	sanitizer := pathutils.NewRelativePathSanitizer()
	seenNames := map[string]struct{}{}
	for repositoryIndex := range mergePlan.Repositories {
		repositorySpec := &mergePlan.Repositories[repositoryIndex]
		repositorySpec.Name = strings.TrimSpace(repositorySpec.Name)
		if len(repositorySpec.Name) == 0 {
			return &PlanError{Message: fmt.Sprintf(missingRepositoryNameTemplateConstant, repositoryIndex)}
		}
		if !isValidPathSegment(repositorySpec.Name) {
			return &PlanError{Message: fmt.Sprintf(invalidRepositoryNameMessageTemplateConstant, repositorySpec.Name)}
		}
		if _, nameSeen := seenNames[repositorySpec.Name]; nameSeen {
			return &PlanError{Message: fmt.Sprintf(duplicateRepositoryNameTemplateConstant, repositorySpec.Name)}
		}
		seenNames[repositorySpec.Name] = struct{}{}
		repositorySpec.URL = strings.TrimSpace(repositorySpec.URL)
		if len(repositorySpec.URL) == 0 {
			return &PlanError{Message: fmt.Sprintf(missingRepositoryURLTemplateConstant, repositorySpec.Name)}
		}
		repositorySpec.Subdirectory = strings.Trim(strings.TrimSpace(repositorySpec.Subdirectory), "/")
		if len(repositorySpec.Subdirectory) > 0 {
			sanitizedSubdirectories, sanitizeError := sanitizer.Sanitize([]string{repositorySpec.Subdirectory})
			if sanitizeError != nil || len(sanitizedSubdirectories) != 1 {
				return &PlanError{Message: fmt.Sprintf(invalidSubdirectoryMessageTemplateConstant, repositorySpec.Name, repositorySpec.Subdirectory), Cause: sanitizeError}
			}
			repositorySpec.Subdirectory = sanitizedSubdirectories[0]
		}
		sanitizedFilterPaths, filterError := sanitizer.Sanitize(repositorySpec.FilterPaths)
		if filterError != nil {
			return &PlanError{Message: fmt.Sprintf(invalidFilterPathsMessageTemplateConstant, repositorySpec.Name, filterError), Cause: filterError}
		}
		repositorySpec.FilterPaths = sanitizedFilterPaths
		sanitizedPreserveFiles, preserveError := sanitizer.Sanitize(repositorySpec.PreserveFiles)
		if preserveError != nil {
			return &PlanError{Message: fmt.Sprintf(invalidPreserveFilesMessageTemplateConstant, repositorySpec.Name, preserveError), Cause: preserveError}
		}
		repositorySpec.PreserveFiles = sanitizedPreserveFiles
		for grabIndex := range repositorySpec.BranchesToGrab {
			branchGrab := &repositorySpec.BranchesToGrab[grabIndex]
			branchGrab.RemoteURL = strings.TrimSpace(branchGrab.RemoteURL)
			branchGrab.Branch = strings.TrimSpace(branchGrab.Branch)
			if len(branchGrab.RemoteURL) == 0 || len(branchGrab.Branch) == 0 {
				return &PlanError{Message: fmt.Sprintf(incompleteBranchGrabMessageTemplateConstant, repositorySpec.Name)}
			}
		}
	}
	if len(mergePlan.Repositories) == 0 {
		return &PlanError{Message: missingRepositoriesMessageConstant}
	}
	if mergePlan.FinalRemote != nil {
		mergePlan.FinalRemote.Name = strings.TrimSpace(mergePlan.FinalRemote.Name)
		mergePlan.FinalRemote.URL = strings.TrimSpace(mergePlan.FinalRemote.URL)
		if len(mergePlan.FinalRemote.Name) == 0 || len(mergePlan.FinalRemote.URL) == 0 {
			return &PlanError{Message: incompleteFinalRemoteMessageConstant}
		}
	}
	return nil
}

func isValidPathSegment(candidate string) bool {
	if candidate == "." || candidate == ".." {
		return false
	}
	return !strings.ContainsAny(candidate, "/\\")
}
