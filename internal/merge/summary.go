package merge

import (
	"fmt"
	"strings"
)

const (
	summaryMergedLineTemplateConstant    = "Merged %d of %d repositories into %s"
	summaryFailedLineTemplateConstant    = "Failed repositories: %s"
	summaryWarningLineTemplateConstant   = "Warnings: %d"
	summaryWarningEntryTemplateConstant  = "  [%s] %s: %s"
	summaryReportLineTemplateConstant    = "Large object report: %s"
	summaryDiskUsageLineTemplateConstant = "Disk usage: %s"
	summaryCompactionLineConstant        = "History compacted"
	summaryFailedNameSeparatorConstant   = ", "
	summaryUnscopedWarningNameConstant   = "run"
)

// RenderSummary produces the operator-facing completion summary for a merge run.
func RenderSummary(report RunReport) string {
	totalRepositories := len(report.MergedRepositories) + len(report.FailedRepositories)
	summaryLines := []string{
		fmt.Sprintf(summaryMergedLineTemplateConstant, len(report.MergedRepositories), totalRepositories, report.OutputPath),
	}
	if len(report.FailedRepositories) > 0 {
		summaryLines = append(summaryLines, fmt.Sprintf(summaryFailedLineTemplateConstant, strings.Join(report.FailedRepositories, summaryFailedNameSeparatorConstant)))
	}
	summaryLines = append(summaryLines, fmt.Sprintf(summaryWarningLineTemplateConstant, len(report.Warnings)))
	for _, runWarning := range report.Warnings {
		warningScope := runWarning.Repository
		if len(warningScope) == 0 {
			warningScope = summaryUnscopedWarningNameConstant
		}
		summaryLines = append(summaryLines, fmt.Sprintf(summaryWarningEntryTemplateConstant, runWarning.Stage, warningScope, runWarning.Message))
	}
	if report.CompactionPerformed {
		summaryLines = append(summaryLines, summaryCompactionLineConstant)
	}
	if len(report.ReportFilePath) > 0 {
		summaryLines = append(summaryLines, fmt.Sprintf(summaryReportLineTemplateConstant, report.ReportFilePath))
	}
	if len(report.DiskUsage) > 0 {
		summaryLines = append(summaryLines, fmt.Sprintf(summaryDiskUsageLineTemplateConstant, report.DiskUsage))
	}
	return strings.Join(summaryLines, "\n")
}
