// Package migrations embeds the SQLite schema.
package migrations

import "embed"

// FS holds the numbered golang-migrate files, e.g. 001_records.up.sql.
//
//go:embed *.sql
var FS embed.FS
