package migrate

import (
	"errors"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/config"
	dbmigrate "github.com/enduroplan/fueltrace-service-go/pkg/db/migrate"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils"
)

func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "performs database migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration()
		},
	}

	cmd.Flags().StringVarP(&config.MigrationSourceURL,
		"migration-source-url",
		"m",
		"",
		"url to migration files (default: migrations bundled with the binary)")

	return cmd
}

func runMigration() error {
	waitForDatabase()

	if config.MigrationSourceURL == "" {
		log.Info("Using bundled migrations")
		return dbmigrate.MigrateDb(config.DB)
	}

	log.Info("Using migration files",
		log.String("source", config.MigrationSourceURL))
	m, err := migrate.New(config.MigrationSourceURL, withoutTLS(config.DB))
	if err != nil {
		log.Fatal("Could not create migration", log.ErrorField(err))
	}
	if err = m.Up(); errors.Is(err, migrate.ErrNoChange) {
		log.Info("No Migration required")
		return nil
	}
	return err
}

func waitForDatabase() {
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}
	if err := utils.WaitForTCP(utils.ExtractFromDBURL(config.DB), timeout); err != nil {
		log.Fatal("database not ready", log.ErrorField(err))
	}
}

// the postgres migrate driver insists on TLS unless told otherwise
func withoutTLS(dbURL string) string {
	parsed, err := url.Parse(dbURL)
	if err != nil {
		return dbURL
	}
	q := parsed.Query()
	if q.Has("sslmode") {
		return dbURL
	}
	q.Set("sslmode", "disable")
	parsed.RawQuery = q.Encode()
	return parsed.String()
}
