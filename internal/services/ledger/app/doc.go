// Package app composes the ledger registries for the command entrypoints.
//
// It opens the SQLite journal, replays each kind into its registry, wires
// the boundary guard and metrics observer, and exposes kind-addressed
// operations for the CLI and MCP surfaces. Every phase is traced.
package app
