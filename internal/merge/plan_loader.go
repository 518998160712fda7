package merge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gotoml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	yamlPlanExtensionConstant              = ".yaml"
	shortYamlPlanExtensionConstant         = ".yml"
	jsonPlanExtensionConstant              = ".json"
	tomlPlanExtensionConstant              = ".toml"
	missingPlanPathMessageConstant         = "no plan path provided"
	unreadablePlanMessageTemplateConstant  = "unable to read plan file %s"
	unsupportedPlanMessageTemplateConstant = "unsupported plan format %q"
	malformedPlanMessageTemplateConstant   = "unable to decode plan file %s"
)

// LoadPlan reads, decodes, and validates the merge plan stored at the provided path.
// YAML, JSON, and TOML documents are supported, selected by file extension.
func LoadPlan(planPath string) (MergePlan, error) {
	trimmedPlanPath := strings.TrimSpace(planPath)
	if len(trimmedPlanPath) == 0 {
		return MergePlan{}, &PlanError{Message: missingPlanPathMessageConstant}
	}
	planContents, readError := os.ReadFile(trimmedPlanPath)
	if readError != nil {
		return MergePlan{}, &PlanError{Message: fmt.Sprintf(unreadablePlanMessageTemplateConstant, trimmedPlanPath), Cause: readError}
	}
	var mergePlan MergePlan
	planExtension := strings.ToLower(filepath.Ext(trimmedPlanPath))
	switch planExtension {
	case yamlPlanExtensionConstant, shortYamlPlanExtensionConstant, jsonPlanExtensionConstant:
		if decodeError := yaml.Unmarshal(planContents, &mergePlan); decodeError != nil {
			return MergePlan{}, &PlanError{Message: fmt.Sprintf(malformedPlanMessageTemplateConstant, trimmedPlanPath), Cause: decodeError}
		}
	case tomlPlanExtensionConstant:
		if decodeError := gotoml.Unmarshal(planContents, &mergePlan); decodeError != nil {
			return MergePlan{}, &PlanError{Message: fmt.Sprintf(malformedPlanMessageTemplateConstant, trimmedPlanPath), Cause: decodeError}
		}
	default:
		return MergePlan{}, &PlanError{Message: fmt.Sprintf(unsupportedPlanMessageTemplateConstant, planExtension)}
	}
	if normalizeError := mergePlan.normalize(); normalizeError != nil {
		return MergePlan{}, normalizeError
	}
	return mergePlan, nil
}
