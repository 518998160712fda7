package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/repofold/internal/utils"
)

func TestNewApplicationRegistersMergeCommand(testInstance *testing.T) {
	application := NewApplication()
	require.NotNil(testInstance, application.rootCommand)

	commandNames := []string{}
	for _, registeredCommand := range application.rootCommand.Commands() {
		commandNames = append(commandNames, registeredCommand.Name())
	}
	require.Contains(testInstance, commandNames, "merge")
}

func TestApplicationDefaultConfiguration(testInstance *testing.T) {
	application := NewApplication()
	initializationError := application.initializeConfiguration(application.rootCommand)
	require.NoError(testInstance, initializationError)

	require.Equal(testInstance, string(utils.LogLevelInfo), application.configuration.Common.LogLevel)
	require.Equal(testInstance, 1, application.configuration.Tools.Merge.TransformWorkers)
	require.True(testInstance, application.configuration.Tools.Merge.RunGarbageCollection)
}
