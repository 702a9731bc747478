// Package migrations embeds the catalog schema migrations for use with goose.
package migrations

import "embed"

// FS contains all goose migration SQL files.
//
//go:embed *.sql
var FS embed.FS
