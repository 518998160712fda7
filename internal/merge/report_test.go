package merge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectLargeObjectsJoinsPathsAndSorts(testInstance *testing.T) {
	objectListing := "aaaa large/model.bin\nbbbb assets/video.mp4\ncccc readme.md\ndddd\n"
	batchCheckListing := "aaaa blob 2048\nbbbb blob 8192\ncccc blob 64\neeee tree 512\nffff blob 8192\n"

	largeObjects := collectLargeObjects(objectListing, batchCheckListing, 1024)
	require.Len(testInstance, largeObjects, 3)

	require.Equal(testInstance, int64(8192), largeObjects[0].Size)
	require.Equal(testInstance, "bbbb", largeObjects[0].ObjectName)
	require.Equal(testInstance, "assets/video.mp4", largeObjects[0].Path)

	require.Equal(testInstance, "ffff", largeObjects[1].ObjectName)
	require.Empty(testInstance, largeObjects[1].Path)

	require.Equal(testInstance, "aaaa", largeObjects[2].ObjectName)
	require.Equal(testInstance, "large/model.bin", largeObjects[2].Path)
}

func TestCollectLargeObjectsIgnoresNonBlobsAndSmallBlobs(testInstance *testing.T) {
	largeObjects := collectLargeObjects("", "aaaa tree 99999\nbbbb blob 10\n", 1024)
	require.Empty(testInstance, largeObjects)
}

func TestRenderLargeObjectReport(testInstance *testing.T) {
	reportText := renderLargeObjectReport([]LargeObject{
		{Size: 4096, ObjectName: "aaaa", Path: "assets/logo.png"},
	})
	require.Equal(testInstance, "size\tobject\tpath\n4096\taaaa\tassets/logo.png\n", reportText)
}
