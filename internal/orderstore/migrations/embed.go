package migrations

import "embed"

// FS contains the embedded order store migrations.
//
//go:embed *.sql
var FS embed.FS
