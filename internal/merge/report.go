package merge

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

const (
	defaultLargeObjectThresholdBytesConstant  = 1 << 20
	largeObjectReportFileNameTemplateConstant = "%s-large-objects.txt"
	largeObjectReportHeaderConstant           = "size\tobject\tpath"
	largeObjectReportLineTemplateConstant     = "%d\t%s\t%s"
	blobObjectTypeConstant                    = "blob"
	reportWriteErrorTemplateConstant          = "unable to write report %s: %w"
)

// LargeObject describes one blob at or above the report threshold.
type LargeObject struct {
	Size       int64
	ObjectName string
	Path       string
}

// writeLargeObjectReport lists every reachable blob at or above thresholdBytes
// and writes them, largest first, to reportFilePath.
func (service *Service) writeLargeObjectReport(executionContext context.Context, repositoryPath string, reportFilePath string, thresholdBytes int64) error {
	objectListing, listError := service.repositoryManager.ListAllObjects(executionContext, repositoryPath)
	if listError != nil {
		return listError
	}
	batchCheckListing, batchError := service.repositoryManager.BatchCheckAllObjects(executionContext, repositoryPath)
	if batchError != nil {
		return batchError
	}
	largeObjects := collectLargeObjects(objectListing, batchCheckListing, thresholdBytes)
	reportContents := renderLargeObjectReport(largeObjects)
	if writeError := os.WriteFile(reportFilePath, []byte(reportContents), preservedFilePermissionsConstant); writeError != nil {
		return fmt.Errorf(reportWriteErrorTemplateConstant, reportFilePath, writeError)
	}
	return nil
}

// collectLargeObjects joins the rev-list object-to-path listing with cat-file
// size records and keeps blobs at or above thresholdBytes, largest first.
func collectLargeObjects(objectListing string, batchCheckListing string, thresholdBytes int64) []LargeObject {
	objectPaths := map[string]string{}
	for _, listingLine := range strings.Split(objectListing, "\n") {
		trimmedLine := strings.TrimSpace(listingLine)
		if len(trimmedLine) == 0 {
			continue
		}
		objectName, objectPath, pathPresent := strings.Cut(trimmedLine, " ")
		if pathPresent {
			objectPaths[objectName] = objectPath
		}
	}

	largeObjects := []LargeObject{}
	for _, batchLine := range strings.Split(batchCheckListing, "\n") {
		lineFields := strings.Fields(batchLine)
		if len(lineFields) != 3 || lineFields[1] != blobObjectTypeConstant {
			continue
		}
		objectSize, sizeError := strconv.ParseInt(lineFields[2], 10, 64)
		if sizeError != nil || objectSize < thresholdBytes {
			continue
		}
		largeObjects = append(largeObjects, LargeObject{
			Size:       objectSize,
			ObjectName: lineFields[0],
			Path:       objectPaths[lineFields[0]],
		})
	}

	sort.Slice(largeObjects, func(firstIndex, secondIndex int) bool {
		if largeObjects[firstIndex].Size != largeObjects[secondIndex].Size {
			return largeObjects[firstIndex].Size > largeObjects[secondIndex].Size
		}
		return largeObjects[firstIndex].ObjectName < largeObjects[secondIndex].ObjectName
	})
	return largeObjects
}

func renderLargeObjectReport(largeObjects []LargeObject) string {
	reportLines := []string{largeObjectReportHeaderConstant}
	for _, largeObject := range largeObjects {
		reportLines = append(reportLines, fmt.Sprintf(largeObjectReportLineTemplateConstant, largeObject.Size, largeObject.ObjectName, largeObject.Path))
	}
	return strings.Join(reportLines, "\n") + "\n"
}
