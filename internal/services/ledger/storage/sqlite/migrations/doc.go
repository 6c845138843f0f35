// Package migrations embeds SQL migration scripts used by the SQLite journal.
//
// Why this package exists:
// - It keeps the journal schema history next to the store that reads it.
// - It lets a fresh database and an upgraded one converge without operator SQL.
package migrations
