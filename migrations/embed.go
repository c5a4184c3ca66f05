// Package migrations carries the device config schema as embedded SQL.
//
// The files are compiled into the binary, so a deployed daemon migrates
// itself without any SQL shipped alongside it.
package migrations

import (
	"embed"

	"github.com/nerrad567/devicelink/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
