package merge

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	workspaceDirectoryTemplateConstant      = "repofold-%s"
	preserveDirectorySuffixConstant         = ".preserve"
	workspaceCreationFailedTemplateConstant = "unable to create workspace directory %s: %w"
	workspaceDirectoryPermissionsConstant   = 0o755
)

// Workspace owns the temporary directory holding per-repository clones and
// preserved-file staging areas for a single merge run.
type Workspace struct {
	rootPath string
}

// NewWorkspace creates a uniquely named workspace directory under the provided
// temporary root, falling back to the operating system default when empty.
func NewWorkspace(temporaryRoot string) (*Workspace, error) {
	resolvedRoot := temporaryRoot
	if len(resolvedRoot) == 0 {
		resolvedRoot = os.TempDir()
	}
	workspacePath := filepath.Join(resolvedRoot, fmt.Sprintf(workspaceDirectoryTemplateConstant, uuid.NewString()))
	if creationError := os.MkdirAll(workspacePath, workspaceDirectoryPermissionsConstant); creationError != nil {
		return nil, fmt.Errorf(workspaceCreationFailedTemplateConstant, workspacePath, creationError)
	}
	return &Workspace{rootPath: workspacePath}, nil
}

// RootPath returns the workspace directory.
func (workspace *Workspace) RootPath() string {
	return workspace.rootPath
}

// RepositoryPath returns the clone directory for the named repository.
func (workspace *Workspace) RepositoryPath(repositoryName string) string {
	return filepath.Join(workspace.rootPath, repositoryName)
}

// PreservePath returns the staging directory holding preserved-file snapshots
// for the named repository.
func (workspace *Workspace) PreservePath(repositoryName string) string {
	return filepath.Join(workspace.rootPath, repositoryName+preserveDirectorySuffixConstant)
}

// Remove deletes the workspace directory and everything beneath it.
func (workspace *Workspace) Remove() error {
	return os.RemoveAll(workspace.rootPath)
}
