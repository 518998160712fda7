package merge

import (
	"strings"
	"time"

	"github.com/temirov/repofold/internal/merge"
)

const (
	configurationBaseDirectoryKeyConstant        = "base_dir"
	configurationTemporaryDirectoryKeyConstant   = "tmp_dir"
	configurationTransformWorkersKeyConstant     = "transform_workers"
	configurationCommandTimeoutKeyConstant       = "command_timeout"
	configurationRunGarbageCollectionKeyConstant = "run_gc"
	configurationLargeObjectReportKeyConstant    = "large_object_report"
	configurationLargeObjectThresholdKeyConstant = "large_object_threshold_bytes"
	configurationKeySeparatorConstant            = "."
	defaultTransformWorkersConstant              = 1
	defaultCommandTimeoutConstant                = time.Duration(0)
	defaultLargeObjectThresholdBytesConstant     = int64(1 << 20)
)

// CommandConfiguration captures persisted settings for the merge command.
type CommandConfiguration struct {
	BaseDirectory             string        `mapstructure:"base_dir"`
	TemporaryDirectory        string        `mapstructure:"tmp_dir"`
	TransformWorkers          int           `mapstructure:"transform_workers"`
	CommandTimeout            time.Duration `mapstructure:"command_timeout"`
	RunGarbageCollection      bool          `mapstructure:"run_gc"`
	LargeObjectReport         bool          `mapstructure:"large_object_report"`
	LargeObjectThresholdBytes int64         `mapstructure:"large_object_threshold_bytes"`
}

// DefaultCommandConfiguration provides the built-in merge command settings.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		BaseDirectory:             "",
		TemporaryDirectory:        "",
		TransformWorkers:          defaultTransformWorkersConstant,
		CommandTimeout:            defaultCommandTimeoutConstant,
		RunGarbageCollection:      true,
		LargeObjectReport:         true,
		LargeObjectThresholdBytes: defaultLargeObjectThresholdBytesConstant,
	}
}

// DefaultConfigurationValues exposes merge defaults keyed for the configuration loader.
func DefaultConfigurationValues(rootKey string) map[string]any {
	defaults := DefaultCommandConfiguration()
	return map[string]any{
		rootKey + configurationKeySeparatorConstant + configurationBaseDirectoryKeyConstant:        defaults.BaseDirectory,
		rootKey + configurationKeySeparatorConstant + configurationTemporaryDirectoryKeyConstant:   defaults.TemporaryDirectory,
		rootKey + configurationKeySeparatorConstant + configurationTransformWorkersKeyConstant:     defaults.TransformWorkers,
		rootKey + configurationKeySeparatorConstant + configurationCommandTimeoutKeyConstant:       defaults.CommandTimeout,
		rootKey + configurationKeySeparatorConstant + configurationRunGarbageCollectionKeyConstant: defaults.RunGarbageCollection,
		rootKey + configurationKeySeparatorConstant + configurationLargeObjectReportKeyConstant:    defaults.LargeObjectReport,
		rootKey + configurationKeySeparatorConstant + configurationLargeObjectThresholdKeyConstant: defaults.LargeObjectThresholdBytes,
	}
}

// sanitize normalizes configuration values, replacing out-of-range settings with defaults.
func (configuration CommandConfiguration) sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.BaseDirectory = strings.TrimSpace(configuration.BaseDirectory)
	sanitized.TemporaryDirectory = strings.TrimSpace(configuration.TemporaryDirectory)
	if sanitized.TransformWorkers < 1 {
		sanitized.TransformWorkers = defaultTransformWorkersConstant
	}
	if sanitized.CommandTimeout < 0 {
		sanitized.CommandTimeout = defaultCommandTimeoutConstant
	}
	if sanitized.LargeObjectThresholdBytes <= 0 {
		sanitized.LargeObjectThresholdBytes = defaultLargeObjectThresholdBytesConstant
	}
	return sanitized
}

func (configuration CommandConfiguration) runOptions(outputName string, baseDirectory string, temporaryDirectory string, transformWorkers int, runGarbageCollection bool, writeLargeObjectReport bool) merge.RunOptions {
	return merge.RunOptions{
		OutputName:                outputName,
		BaseDirectory:             baseDirectory,
		TemporaryDirectory:        temporaryDirectory,
		TransformWorkers:          transformWorkers,
		RunGarbageCollection:      runGarbageCollection,
		WriteLargeObjectReport:    writeLargeObjectReport,
		LargeObjectThresholdBytes: configuration.LargeObjectThresholdBytes,
	}
}
