// Package migrations contains embedded SQL migrations for the SQL token store.
package migrations

import "embed"

// FS holds one directory of migrations per dialect.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
