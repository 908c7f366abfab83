// Package migrations embeds the schema for both supported stores.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Postgres returns the PostgreSQL migrations
func Postgres() fs.FS {
	return sub("postgres")
}

// SQLite returns the SQLite migrations
func SQLite() fs.FS {
	return sub("sqlite")
}

func sub(dir string) fs.FS {
	fsys, err := fs.Sub(files, dir)
	if err != nil {
		// the directory is embedded at compile time
		panic(err)
	}
	return fsys
}
