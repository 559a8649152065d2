// Package migrations embeds the Coldtag Core SQL migrations into the binary.
//
// Pass FS to database.DB.Migrate at startup; the files live at the root of
// the embedded filesystem.
package migrations

import "embed"

// FS holds every *.up.sql and *.down.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
