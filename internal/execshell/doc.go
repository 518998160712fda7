// Package execshell provides structured helpers for invoking external tools.
//
// It wraps os/exec with logging, per-command timeouts, and lifecycle events
// via ShellExecutor, exposes OSCommandRunner for default process execution,
// and defines the abstractions repofold uses to drive git and du in a
// testable manner.
package execshell
