// Package migrations embeds the valve core's SQL schema into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-valve/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
