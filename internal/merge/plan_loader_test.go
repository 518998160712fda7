package merge_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/repofold/internal/merge"
)

const (
	yamlPlanDocumentConstant = `primary_branch: trunk
repositories:
  - name: alpha
    url: https://example.com/alpha.git
    subdirectory: services/alpha
    reset_to_branch: release
    filter_paths:
      - src
      - docs/readme.md
    preserve_files:
      - .gitignore
      - config/settings.toml
    branches_to_grab:
      - remote_url: https://example.com/alpha-fork.git
        branch: feature
  - name: beta
    url: https://example.com/beta.git
    default_branch: main
    invert_paths: true
    filter_paths:
      - vendor
final_remote:
  name: origin
  url: git@example.com:merged.git
`
	tomlPlanDocumentConstant = `primary_branch = "trunk"

[[repositories]]
name = "alpha"
url = "https://example.com/alpha.git"
subdirectory = "services/alpha"

[final_remote]
name = "origin"
url = "git@example.com:merged.git"
`
	jsonPlanDocumentConstant = `{
  "repositories": [
    {"name": "alpha", "url": "https://example.com/alpha.git"}
  ]
}`
)

func writePlanFile(testInstance *testing.T, fileName string, contents string) string {
	testInstance.Helper()
	planPath := filepath.Join(testInstance.TempDir(), fileName)
	require.NoError(testInstance, os.WriteFile(planPath, []byte(contents), 0o644))
	return planPath
}

func TestLoadPlanYAML(testInstance *testing.T) {
	loadedPlan, loadError := merge.LoadPlan(writePlanFile(testInstance, "plan.yaml", yamlPlanDocumentConstant))
	require.NoError(testInstance, loadError)

	require.Equal(testInstance, "trunk", loadedPlan.PrimaryBranch)
	require.Len(testInstance, loadedPlan.Repositories, 2)

	alphaRepository := loadedPlan.Repositories[0]
	require.Equal(testInstance, "alpha", alphaRepository.Name)
	require.Equal(testInstance, "master", alphaRepository.DefaultBranch)
	require.Equal(testInstance, "services/alpha", alphaRepository.Subdirectory)
	require.Equal(testInstance, "release", alphaRepository.ResetToBranch)
	require.Equal(testInstance, []string{"src", "docs/readme.md"}, alphaRepository.FilterPaths)
	require.Equal(testInstance, []string{".gitignore", "config/settings.toml"}, alphaRepository.PreserveFiles)
	require.Len(testInstance, alphaRepository.BranchesToGrab, 1)
	require.Equal(testInstance, "feature", alphaRepository.BranchesToGrab[0].Branch)

	betaRepository := loadedPlan.Repositories[1]
	require.Equal(testInstance, "main", betaRepository.DefaultBranch)
	require.True(testInstance, betaRepository.InvertPaths)

	require.NotNil(testInstance, loadedPlan.FinalRemote)
	require.Equal(testInstance, "origin", loadedPlan.FinalRemote.Name)
	require.True(testInstance, loadedPlan.RequiresHistoryRewrite())
}

func TestLoadPlanTOML(testInstance *testing.T) {
	loadedPlan, loadError := merge.LoadPlan(writePlanFile(testInstance, "plan.toml", tomlPlanDocumentConstant))
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, "trunk", loadedPlan.PrimaryBranch)
	require.Len(testInstance, loadedPlan.Repositories, 1)
	require.Equal(testInstance, "services/alpha", loadedPlan.Repositories[0].Subdirectory)
}

func TestLoadPlanJSON(testInstance *testing.T) {
	loadedPlan, loadError := merge.LoadPlan(writePlanFile(testInstance, "plan.json", jsonPlanDocumentConstant))
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, "master", loadedPlan.PrimaryBranch)
	require.False(testInstance, loadedPlan.RequiresHistoryRewrite())
}

func TestLoadPlanRejectsInvalidDocuments(testInstance *testing.T) {
	testCases := []struct {
		name     string
		fileName string
		contents string
	}{
		{
			name:     "no_repositories",
			fileName: "plan.yaml",
			contents: "repositories: []\n",
		},
		{
			name:     "missing_url",
			fileName: "plan.yaml",
			contents: "repositories:\n  - name: alpha\n",
		},
		{
			name:     "duplicate_names",
			fileName: "plan.yaml",
			contents: "repositories:\n  - name: alpha\n    url: https://example.com/a.git\n  - name: alpha\n    url: https://example.com/b.git\n",
		},
		{
			name:     "invalid_name",
			fileName: "plan.yaml",
			contents: "repositories:\n  - name: alpha/beta\n    url: https://example.com/a.git\n",
		},
		{
			name:     "absolute_filter_path",
			fileName: "plan.yaml",
			contents: "repositories:\n  - name: alpha\n    url: https://example.com/a.git\n    filter_paths:\n      - /etc/passwd\n",
		},
		{
			name:     "escaping_preserve_file",
			fileName: "plan.yaml",
			contents: "repositories:\n  - name: alpha\n    url: https://example.com/a.git\n    preserve_files:\n      - ../outside\n",
		},
		{
			name:     "incomplete_branch_grab",
			fileName: "plan.yaml",
			contents: "repositories:\n  - name: alpha\n    url: https://example.com/a.git\n    branches_to_grab:\n      - branch: feature\n",
		},
		{
			name:     "incomplete_final_remote",
			fileName: "plan.yaml",
			contents: "repositories:\n  - name: alpha\n    url: https://example.com/a.git\nfinal_remote:\n  name: origin\n",
		},
		{
			name:     "unsupported_extension",
			fileName: "plan.ini",
			contents: "[repositories]\n",
		},
		{
			name:     "malformed_yaml",
			fileName: "plan.yaml",
			contents: "repositories: [\n",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			_, loadError := merge.LoadPlan(writePlanFile(subtestInstance, testCase.fileName, testCase.contents))
			require.Error(subtestInstance, loadError)
			planError := &merge.PlanError{}
			require.ErrorAs(subtestInstance, loadError, &planError)
		})
	}
}

func TestLoadPlanMissingFile(testInstance *testing.T) {
	_, loadError := merge.LoadPlan(filepath.Join(testInstance.TempDir(), "absent.yaml"))
	require.Error(testInstance, loadError)
}
