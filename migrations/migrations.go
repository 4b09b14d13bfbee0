package migrations

import (
	"embed"

	"github.com/uptrace/bun/migrate"
)

//go:embed *.sql
var FS embed.FS

var Migrations = migrate.NewMigrations()

func init() {
	if err := Migrations.Discover(FS); err != nil {
		panic(err)
	}
}
