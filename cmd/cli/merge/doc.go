// Package merge wires the repository merge service into the CLI, resolving
// configuration, flags, and shared dependencies before running a plan.
package merge
