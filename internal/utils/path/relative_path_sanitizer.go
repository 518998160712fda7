package pathutils

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	parentDirectorySegmentConstant       = ".."
	absolutePathRejectedTemplateConstant = "path %q must be relative"
	escapingPathRejectedTemplateConstant = "path %q escapes the repository root"
	backslashSeparatorConstant           = "\\"
	forwardSlashSeparatorConstant        = "/"
	parentDirectoryEscapePrefixConstant  = parentDirectorySegmentConstant + forwardSlashSeparatorConstant
)

// RelativePathSanitizer normalizes repository-relative path lists from merge plans.
type RelativePathSanitizer struct{}

// NewRelativePathSanitizer constructs a RelativePathSanitizer.
func NewRelativePathSanitizer() *RelativePathSanitizer {
	return &RelativePathSanitizer{}
}

// Sanitize trims entries, drops empties and duplicates, and rejects absolute or root-escaping paths.
func (sanitizer *RelativePathSanitizer) Sanitize(candidatePaths []string) ([]string, error) {
	sanitizedPaths := make([]string, 0, len(candidatePaths))
	seenPaths := make(map[string]struct{}, len(candidatePaths))

	for candidateIndex := range candidatePaths {
		trimmedCandidate := strings.TrimSpace(candidatePaths[candidateIndex])
		if len(trimmedCandidate) == 0 {
			continue
		}

		normalizedCandidate := strings.ReplaceAll(trimmedCandidate, backslashSeparatorConstant, forwardSlashSeparatorConstant)
		if filepath.IsAbs(normalizedCandidate) || strings.HasPrefix(normalizedCandidate, forwardSlashSeparatorConstant) {
			return nil, fmt.Errorf(absolutePathRejectedTemplateConstant, trimmedCandidate)
		}

		cleanedCandidate := filepath.ToSlash(filepath.Clean(normalizedCandidate))
		if cleanedCandidate == parentDirectorySegmentConstant || strings.HasPrefix(cleanedCandidate, parentDirectoryEscapePrefixConstant) {
			return nil, fmt.Errorf(escapingPathRejectedTemplateConstant, trimmedCandidate)
		}

		if _, alreadySeen := seenPaths[cleanedCandidate]; alreadySeen {
			continue
		}
		seenPaths[cleanedCandidate] = struct{}{}
		sanitizedPaths = append(sanitizedPaths, cleanedCandidate)
	}

	if len(sanitizedPaths) == 0 {
		return nil, nil
	}
	return sanitizedPaths, nil
}
