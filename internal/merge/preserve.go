package merge

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	preserveSnapshotFailedTemplateConstant = "unable to snapshot %s: %w"
	preserveRestoreFailedTemplateConstant  = "unable to restore %s: %w"
	preservedFilePermissionsConstant       = 0o644
)

// snapshotPreservedFiles copies the listed working-tree files into the staging
// directory before history rewriting destroys them. Snapshots are stored flat
// under their base names. Files absent from the working tree are skipped.
func snapshotPreservedFiles(workingPath string, stagingPath string, preserveFiles []string) ([]string, error) {
	capturedNames := []string{}
	for _, preserveFile := range preserveFiles {
		sourcePath := filepath.Join(workingPath, preserveFile)
		sourceInfo, statError := os.Stat(sourcePath)
		if statError != nil || !sourceInfo.Mode().IsRegular() {
			continue
		}
		if len(capturedNames) == 0 {
			if creationError := os.MkdirAll(stagingPath, workspaceDirectoryPermissionsConstant); creationError != nil {
				return nil, fmt.Errorf(preserveSnapshotFailedTemplateConstant, preserveFile, creationError)
			}
		}
		sourceContents, readError := os.ReadFile(sourcePath)
		if readError != nil {
			return nil, fmt.Errorf(preserveSnapshotFailedTemplateConstant, preserveFile, readError)
		}
		snapshotName := filepath.Base(preserveFile)
		snapshotPath := filepath.Join(stagingPath, snapshotName)
		if writeError := os.WriteFile(snapshotPath, sourceContents, preservedFilePermissionsConstant); writeError != nil {
			return nil, fmt.Errorf(preserveSnapshotFailedTemplateConstant, preserveFile, writeError)
		}
		capturedNames = append(capturedNames, snapshotName)
	}
	return capturedNames, nil
}

// restorePreservedFiles copies snapshots back into the working tree underneath
// the relocation subdirectory and returns the repository-relative paths written.
func restorePreservedFiles(workingPath string, stagingPath string, subdirectory string, capturedNames []string) ([]string, error) {
	restoredPaths := []string{}
	for _, capturedName := range capturedNames {
		snapshotContents, readError := os.ReadFile(filepath.Join(stagingPath, capturedName))
		if readError != nil {
			return nil, fmt.Errorf(preserveRestoreFailedTemplateConstant, capturedName, readError)
		}
		relativePath := capturedName
		if len(subdirectory) > 0 {
			relativePath = filepath.Join(subdirectory, capturedName)
		}
		targetPath := filepath.Join(workingPath, relativePath)
		if creationError := os.MkdirAll(filepath.Dir(targetPath), workspaceDirectoryPermissionsConstant); creationError != nil {
			return nil, fmt.Errorf(preserveRestoreFailedTemplateConstant, capturedName, creationError)
		}
		if writeError := os.WriteFile(targetPath, snapshotContents, preservedFilePermissionsConstant); writeError != nil {
			return nil, fmt.Errorf(preserveRestoreFailedTemplateConstant, capturedName, writeError)
		}
		restoredPaths = append(restoredPaths, relativePath)
	}
	return restoredPaths, nil
}
