package migrations

import "embed"

// FS contains embedded PostgreSQL migrations for cutscene storage.
//
//go:embed *.sql
var FS embed.FS
