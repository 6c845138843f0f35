package migrations

import "embed"

//go:embed records/*.sql
var RecordsFS embed.FS
