// Package cmd implements the command-line interface for the dGrid cache
// engine. It provides a hierarchical command structure for inspecting and
// load testing a local engine instance.
//
// The package is organized into several subpackages:
//
//   - bench: Load testing command running benchmarks against a local engine
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dgrid -help for a list of all commands.
package cmd
