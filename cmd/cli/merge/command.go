package merge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/temirov/repofold/internal/execshell"
	"github.com/temirov/repofold/internal/gitrepo"
	"github.com/temirov/repofold/internal/merge"
	"github.com/temirov/repofold/internal/utils"
	"github.com/temirov/repofold/internal/utils/flags"
	pathutils "github.com/temirov/repofold/internal/utils/path"
)

const (
	commandUseConstant                       = "merge [plan]"
	commandShortDescriptionConstant          = "Merge repository histories according to a plan file"
	commandLongDescriptionConstant           = "merge clones every repository named in a YAML, JSON, or TOML plan, rewrites each history, and folds the results into one output repository."
	outputFlagNameConstant                   = "output"
	outputFlagShorthandConstant              = "o"
	outputFlagDescriptionConstant            = "Name of the merged output repository"
	baseDirectoryFlagNameConstant            = "base-dir"
	baseDirectoryFlagDescriptionConstant     = "Directory receiving the merged repository (defaults to the home directory)"
	temporaryDirectoryFlagNameConstant       = "tmp-dir"
	temporaryDirectoryFlagDescription        = "Directory holding the disposable merge workspace"
	transformWorkersFlagNameConstant         = "transform-workers"
	transformWorkersFlagDescriptionConstant  = "Number of repositories transformed concurrently"
	garbageCollectionFlagNameConstant        = "gc"
	garbageCollectionFlagDescriptionConstant = "Compact the merged repository after merging"
	largeObjectReportFlagNameConstant        = "report"
	largeObjectReportFlagDescription         = "Write a large object report next to the merged repository"
	planPathRequiredMessageConstant          = "merge plan path required; provide a positional argument or --config flag"
	outputNameRequiredMessageConstant        = "output repository name required; provide the --output flag"
	loadPlanErrorTemplateConstant            = "unable to load merge plan: %w"
	shellExecutorErrorTemplateConstant       = "unable to construct shell executor: %w"
	repositoryManagerErrorTemplateConstant   = "unable to construct repository manager: %w"
	mergeServiceErrorTemplateConstant        = "unable to construct merge service: %w"
	summaryOutputTemplateConstant            = "%s\n"
)

// CommandBuilder assembles the merge command.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	GitExecutor                  gitrepo.CommandExecutor
	DiskUsageExecutor            merge.DiskUsageExecutor
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() CommandConfiguration

	garbageCollectionFlagValue bool
	largeObjectReportFlagValue bool
}

// Build constructs the merge command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		Args:  cobra.MaximumNArgs(1),
		RunE:  builder.run,
	}

	command.Flags().StringP(outputFlagNameConstant, outputFlagShorthandConstant, "", outputFlagDescriptionConstant)
	command.Flags().String(baseDirectoryFlagNameConstant, "", baseDirectoryFlagDescriptionConstant)
	command.Flags().String(temporaryDirectoryFlagNameConstant, "", temporaryDirectoryFlagDescription)
	command.Flags().Int(transformWorkersFlagNameConstant, defaultTransformWorkersConstant, transformWorkersFlagDescriptionConstant)
	flags.AddToggleFlag(command.Flags(), &builder.garbageCollectionFlagValue, garbageCollectionFlagNameConstant, "", true, garbageCollectionFlagDescriptionConstant)
	flags.AddToggleFlag(command.Flags(), &builder.largeObjectReportFlagValue, largeObjectReportFlagNameConstant, "", true, largeObjectReportFlagDescription)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	contextAccessor := utils.NewCommandContextAccessor()

	planPathCandidate := ""
	if len(arguments) > 0 {
		planPathCandidate = strings.TrimSpace(arguments[0])
	} else {
		planPathFromContext, planPathAvailable := contextAccessor.ConfigurationFilePath(command.Context())
		if planPathAvailable {
			planPathCandidate = strings.TrimSpace(planPathFromContext)
		}
	}

	if len(planPathCandidate) == 0 {
		if helpError := displayCommandHelp(command); helpError != nil {
			return helpError
		}
		return errors.New(planPathRequiredMessageConstant)
	}

	outputName, _ := command.Flags().GetString(outputFlagNameConstant)
	outputName = strings.TrimSpace(outputName)
	if len(outputName) == 0 {
		if helpError := displayCommandHelp(command); helpError != nil {
			return helpError
		}
		return errors.New(outputNameRequiredMessageConstant)
	}

	mergePlan, planError := merge.LoadPlan(planPathCandidate)
	if planError != nil {
		return fmt.Errorf(loadPlanErrorTemplateConstant, planError)
	}

	commandConfiguration := builder.resolveConfiguration()
	logger := resolveLogger(builder.LoggerProvider)
	humanReadableLogging := false
	if builder.HumanReadableLoggingProvider != nil {
		humanReadableLogging = builder.HumanReadableLoggingProvider()
	}

	gitExecutor := builder.GitExecutor
	diskUsageExecutor := builder.DiskUsageExecutor
	if gitExecutor == nil || diskUsageExecutor == nil {
		shellExecutor, executorError := execshell.NewShellExecutorWithConfiguration(
			logger,
			execshell.NewOSCommandRunner(),
			execshell.ExecutorConfiguration{
				CommandTimeout:       commandConfiguration.CommandTimeout,
				HumanReadableLogging: humanReadableLogging,
			},
		)
		if executorError != nil {
			return fmt.Errorf(shellExecutorErrorTemplateConstant, executorError)
		}
		if gitExecutor == nil {
			gitExecutor = shellExecutor
		}
		if diskUsageExecutor == nil {
			diskUsageExecutor = shellExecutor
		}
	}

	repositoryManager, managerError := gitrepo.NewRepositoryManager(gitExecutor)
	if managerError != nil {
		return fmt.Errorf(repositoryManagerErrorTemplateConstant, managerError)
	}

	mergeService, serviceError := merge.NewService(merge.ServiceDependencies{
		Logger:            logger,
		RepositoryManager: repositoryManager,
		DiskUsageExecutor: diskUsageExecutor,
	})
	if serviceError != nil {
		return fmt.Errorf(mergeServiceErrorTemplateConstant, serviceError)
	}

	homeExpander := pathutils.NewHomeExpander()
	baseDirectory := commandConfiguration.BaseDirectory
	if command.Flags().Changed(baseDirectoryFlagNameConstant) {
		baseDirectory, _ = command.Flags().GetString(baseDirectoryFlagNameConstant)
	}
	baseDirectory = homeExpander.Expand(strings.TrimSpace(baseDirectory))

	temporaryDirectory := commandConfiguration.TemporaryDirectory
	if command.Flags().Changed(temporaryDirectoryFlagNameConstant) {
		temporaryDirectory, _ = command.Flags().GetString(temporaryDirectoryFlagNameConstant)
	}
	temporaryDirectory = homeExpander.Expand(strings.TrimSpace(temporaryDirectory))

	transformWorkers := commandConfiguration.TransformWorkers
	if command.Flags().Changed(transformWorkersFlagNameConstant) {
		transformWorkers, _ = command.Flags().GetInt(transformWorkersFlagNameConstant)
	}

	runGarbageCollection := commandConfiguration.RunGarbageCollection
	if command.Flags().Changed(garbageCollectionFlagNameConstant) {
		runGarbageCollection = builder.garbageCollectionFlagValue
	}

	writeLargeObjectReport := commandConfiguration.LargeObjectReport
	if command.Flags().Changed(largeObjectReportFlagNameConstant) {
		writeLargeObjectReport = builder.largeObjectReportFlagValue
	}

	runOptions := commandConfiguration.runOptions(outputName, baseDirectory, temporaryDirectory, transformWorkers, runGarbageCollection, writeLargeObjectReport)

	runReport, runError := mergeService.Run(command.Context(), mergePlan, runOptions)
	if runError != nil {
		return runError
	}

	summaryWriter := utils.NewFlushingWriter(command.OutOrStdout())
	fmt.Fprintf(summaryWriter, summaryOutputTemplateConstant, merge.RenderSummary(runReport))
	return nil
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}
	return builder.ConfigurationProvider().sanitize()
}
