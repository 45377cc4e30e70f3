// Package migrations embeds the SQL migration files into the binary.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var files embed.FS

// FS is passed to database.DB.Migrate.
var FS fs.FS = files
