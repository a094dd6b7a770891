package migrations

import "embed"

// FS contains embedded SQLite migrations for cutscene storage.
//
//go:embed *.sql
var FS embed.FS
