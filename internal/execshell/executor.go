package execshell

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	loggerNotConfiguredMessageConstant        = "shell executor requires a logger"
	commandRunnerNotConfiguredMessageConstant = "shell executor requires a command runner"
	commandFailedErrorTemplateConstant        = "%s exited with code %d"
	commandExecutionErrorTemplateConstant     = "%s could not be executed: %v"
	structuredStartMessageConstant            = "shell command starting"
	structuredSuccessMessageConstant          = "shell command completed"
	structuredFailureMessageConstant          = "shell command failed"
	structuredExecutionFailureMessageConstant = "shell command execution failed"
	logFieldCommandConstant                   = "command"
	logFieldArgumentsConstant                 = "arguments"
	logFieldWorkingDirectoryConstant          = "working_directory"
	logFieldExitCodeConstant                  = "exit_code"
	logFieldDurationConstant                  = "duration"
	logFieldStandardErrorConstant             = "standard_error"
)

// CommandName identifies a supported executable.
type CommandName string

// Supported executables.
const (
	CommandGit       CommandName = "git"
	CommandDiskUsage CommandName = "du"
)

// CommandDetails describes a single tool invocation.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
}

// ShellCommand combines a CommandName with invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable results of executing a command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner represents the ability to run shell commands.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// Construction validation errors.
var (
	ErrLoggerNotConfigured        = errors.New(loggerNotConfiguredMessageConstant)
	ErrCommandRunnerNotConfigured = errors.New(commandRunnerNotConfiguredMessageConstant)
)

// CommandFailedError reports a command that completed with a non-zero exit code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the failed command.
func (failedError CommandFailedError) Error() string {
	formatter := CommandMessageFormatter{}
	message := formatter.BuildFailureMessage(failedError.Command, failedError.Result)
	if len(message) > 0 {
		return message
	}
	return fmt.Sprintf(commandFailedErrorTemplateConstant, failedError.Command.Name, failedError.Result.ExitCode)
}

// CommandExecutionError reports a command that could not be executed at all.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the execution failure.
func (executionError CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionErrorTemplateConstant, executionError.Command.Name, executionError.Cause)
}

// Unwrap exposes the underlying cause.
func (executionError CommandExecutionError) Unwrap() error {
	return executionError.Cause
}

// ExecutorConfiguration adjusts optional ShellExecutor behavior.
type ExecutorConfiguration struct {
	// CommandTimeout bounds each command invocation; zero disables the bound.
	CommandTimeout time.Duration
	// HumanReadableLogging switches lifecycle log messages to formatted sentences.
	HumanReadableLogging bool
	// EventObserver receives command lifecycle notifications.
	EventObserver CommandEventObserver
}

// ShellExecutor runs external commands with structured logging and lifecycle events.
type ShellExecutor struct {
	logger               *zap.Logger
	commandRunner        CommandRunner
	messageFormatter     CommandMessageFormatter
	eventObserver        CommandEventObserver
	commandTimeout       time.Duration
	humanReadableLogging bool
}

// NewShellExecutor constructs a ShellExecutor with default configuration.
func NewShellExecutor(logger *zap.Logger, commandRunner CommandRunner) (*ShellExecutor, error) {
	return NewShellExecutorWithConfiguration(logger, commandRunner, ExecutorConfiguration{})
}

// NewShellExecutorWithConfiguration constructs a ShellExecutor honoring the provided configuration.
func NewShellExecutorWithConfiguration(logger *zap.Logger, commandRunner CommandRunner, configuration ExecutorConfiguration) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if commandRunner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}

	eventObserver := configuration.EventObserver
	if eventObserver == nil {
		eventObserver = noopCommandEventObserver{}
	}

	return &ShellExecutor{
		logger:               logger,
		commandRunner:        commandRunner,
		messageFormatter:     CommandMessageFormatter{},
		eventObserver:        eventObserver,
		commandTimeout:       configuration.CommandTimeout,
		humanReadableLogging: configuration.HumanReadableLogging,
	}, nil
}

// ExecuteGit runs git with the provided details.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGit, Details: details})
}

// ExecuteDiskUsage runs du with the provided details.
func (executor *ShellExecutor) ExecuteDiskUsage(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandDiskUsage, Details: details})
}

// Execute runs the supplied command, logging lifecycle events and translating failures into typed errors.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	boundedContext := executionContext
	if executor.commandTimeout > 0 {
		var cancelExecution context.CancelFunc
		boundedContext, cancelExecution = context.WithTimeout(executionContext, executor.commandTimeout)
		defer cancelExecution()
	}

	executor.eventObserver.CommandStarted(command)
	executor.logCommandStart(command)
	startedAt := time.Now()

	executionResult, runError := executor.commandRunner.Run(boundedContext, command)
	elapsed := time.Since(startedAt)

	if runError != nil {
		executor.eventObserver.CommandExecutionFailed(command, runError)
		executor.logExecutionFailure(command, runError, elapsed)
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runError}
	}

	executor.eventObserver.CommandCompleted(command, executionResult)
	if executionResult.ExitCode != 0 {
		executor.logCommandFailure(command, executionResult, elapsed)
		return executionResult, CommandFailedError{Command: command, Result: executionResult}
	}

	executor.logCommandSuccess(command, executionResult, elapsed)
	return executionResult, nil
}

func (executor *ShellExecutor) logCommandStart(command ShellCommand) {
	if executor.humanReadableLogging {
		executor.logger.Info(executor.messageFormatter.BuildStartedMessage(command))
		return
	}
	executor.logger.Info(
		structuredStartMessageConstant,
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		zap.String(logFieldWorkingDirectoryConstant, command.Details.WorkingDirectory),
	)
}

func (executor *ShellExecutor) logCommandSuccess(command ShellCommand, result ExecutionResult, elapsed time.Duration) {
	if executor.humanReadableLogging {
		executor.logger.Info(executor.messageFormatter.BuildSuccessMessage(command))
		return
	}
	executor.logger.Info(
		structuredSuccessMessageConstant,
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Int(logFieldExitCodeConstant, result.ExitCode),
		zap.Duration(logFieldDurationConstant, elapsed),
	)
}

func (executor *ShellExecutor) logCommandFailure(command ShellCommand, result ExecutionResult, elapsed time.Duration) {
	if executor.humanReadableLogging {
		executor.logger.Warn(executor.messageFormatter.BuildFailureMessage(command, result))
		return
	}
	executor.logger.Warn(
		structuredFailureMessageConstant,
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Int(logFieldExitCodeConstant, result.ExitCode),
		zap.Duration(logFieldDurationConstant, elapsed),
		zap.String(logFieldStandardErrorConstant, result.StandardError),
	)
}

func (executor *ShellExecutor) logExecutionFailure(command ShellCommand, failure error, elapsed time.Duration) {
	if executor.humanReadableLogging {
		executor.logger.Error(executor.messageFormatter.BuildExecutionFailureMessage(command, failure))
		return
	}
	executor.logger.Error(
		structuredExecutionFailureMessageConstant,
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Duration(logFieldDurationConstant, elapsed),
		zap.Error(failure),
	)
}
