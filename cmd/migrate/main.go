package main

import (
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"bitbucket.org/mmdatafocus/collectives_backend/models"
)

// migrate applies the embedded schema migrations.
//
//	go run ./cmd/migrate                  apply all pending migrations
//	go run ./cmd/migrate -down -steps 1   roll back the last migration
//	go run ./cmd/migrate -version         print the applied version
func main() {
	down := flag.Bool("down", false, "roll back instead of applying")
	steps := flag.Int("steps", 0, "number of migrations to apply or roll back (0 = all)")
	version := flag.Bool("version", false, "print the applied version and exit")
	flag.Parse()

	logger := config.GetLogger()

	if *version {
		v, dirty, err := models.MigrationVersion()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read migration version: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("version=%d dirty=%v\n", v, dirty)
		return
	}

	if *down && *steps == 0 {
		fmt.Fprintln(os.Stderr, "-down needs -steps, refusing to drop the whole schema")
		os.Exit(1)
	}
	direction := models.MigrateUp
	if *down {
		direction = models.MigrateDown
	}
	if err := models.RunMigrations(direction, *steps); err != nil {
		config.LogError(logger, "cmd/migrate", "main", "RunMigrations", direction, err)
		os.Exit(1)
	}
	v, dirty, err := models.MigrationVersion()
	if err != nil {
		config.LogError(logger, "cmd/migrate", "main", "MigrationVersion", nil, err)
		os.Exit(1)
	}
	logger.WithField("version", v).WithField("dirty", dirty).Info("migrations applied")
}
