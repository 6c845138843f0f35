// Package mcpserver exposes the ledger over the Model Context Protocol.
//
// Why this package exists:
// - It gives assistants read access to records, stats and verification.
// - It keeps the surface read-only; appends go through the ledger CLI.
package mcpserver
