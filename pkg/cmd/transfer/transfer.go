package transfer

import (
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/config"
	"github.com/enduroplan/fueltrace-service-go/pkg/db/postgres"
)

func NewTransferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "commands to copy data from another instance database",
	}

	cmd.PersistentFlags().StringVar(&sourceDbUrl,
		"source-db-url",
		"postgresql://DB_USERNAME:DB_USER_PASSWORD@DB_HOST:5432/fueltrace",
		"database connection string for the source database")

	cmd.AddCommand(NewTransferTracksCmd())
	cmd.AddCommand(NewTransferCurvesCmd())
	return cmd
}

var (
	sourceDbUrl string
	poolSource  *pgxpool.Pool
	poolDest    *pgxpool.Pool
)

func setupDatabases() {
	dbDestUrl := prepareDbUrl(config.DB)
	dbSourceUrl := prepareDbUrl(sourceDbUrl)
	log.Info("Using source ", log.String("url", dbSourceUrl))
	log.Info("Using destination ", log.String("url", dbDestUrl))

	poolDest = postgres.InitWithUrl(dbDestUrl)
	poolSource = postgres.InitWithUrl(dbSourceUrl)
}

func prepareDbUrl(dbURL string) string {
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
