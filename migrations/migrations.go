// Package migrations embeds the versioned schema applied by golang-migrate.
package migrations

import "embed"

//go:embed sql/*.sql
var FS embed.FS

// Dir is the directory of the migration files inside FS.
const Dir = "sql"
