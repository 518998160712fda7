// Package merge folds the histories of multiple source repositories into one
// output repository. A declarative plan names the sources, the history rewrites
// applied to each, and the files preserved across rewriting; the Service clones
// and transforms every source in a disposable workspace, merges the results
// sequentially, and compacts the merged history.
package merge
