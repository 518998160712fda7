// Package gitrepo contains helpers for manipulating Git repositories.
//
// It exposes RepositoryManager, a narrow interface over the git command line
// covering exactly the operations the merge orchestrator needs: cloning,
// branch management, unrelated-history pulls, filter-repo rewrites,
// reference cleanup, and object inspection.
package gitrepo
