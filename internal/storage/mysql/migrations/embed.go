package migrations

import "embed"

// FS contains embedded MySQL migrations for cutscene storage.
//
//go:embed *.sql
var FS embed.FS
