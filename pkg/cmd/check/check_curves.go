package check

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/scan"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/config"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils"
)

var (
	trackID int
	carName string
)

func NewCheckCurvesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "curves",
		Short: "scans stored fuel curves for inconsistencies (dev only)",
		Run: func(cmd *cobra.Command, args []string) {
			checkCurves()
		},
	}
	cmd.Flags().IntVar(&trackID, "track-id", 0, "restrict the scan to this track")
	cmd.Flags().StringVar(&carName, "car-name", "", "restrict the scan to this car")
	return cmd
}

type (
	// one row per stored sample, curves arrive ordered by id and pct
	curveSampleRow struct {
		ID          string
		TrackID     int
		CarName     string
		RecordStamp time.Time
		Pct         int
		Fuel        decimal.NullDecimal
	}
	emptyCurveRow struct {
		ID      string
		TrackID int
		CarName string
	}
)

//nolint:funlen // by design
func checkCurves() {
	// wait for database
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}
	ctx := context.Background()
	postgresAddr := utils.ExtractFromDBURL(config.DB)
	if err = utils.WaitForTCP(postgresAddr, timeout); err != nil {
		log.Fatal("database  not ready", log.ErrorField(err))
	}
	db, err := sql.Open("postgres", withoutTLS(config.DB))
	if err != nil {
		log.Fatal("could not open database", log.ErrorField(err))
	}
	defer db.Close()
	if err = db.PingContext(ctx); err != nil {
		log.Fatal("could not connect database", log.ErrorField(err))
	}
	executor := bob.NewDB(db)

	sqlSamples := `
SELECT fc.id, fc.track_id, fc.car_name, fc.record_stamp,
       COALESCE((s.value->>'pct')::int, -1) AS pct,
       (s.value->>'fuel')::numeric AS fuel
  FROM fuel_curve fc
       CROSS JOIN LATERAL jsonb_array_elements(fc.data->'samples') s
 WHERE (fc.track_id = ? OR ? = 0)
   AND (fc.car_name = ? OR ? = '')
 ORDER BY fc.track_id, fc.car_name, fc.record_stamp, fc.id, pct
	`
	// the raw query can only use ? placeholders, so the arguments have to
	// be passed in the exact order they appear in the query
	q := psql.RawQuery(sqlSamples,
		psql.Arg(trackID),
		psql.Arg(trackID),
		psql.Arg(carName),
		psql.Arg(carName),
	)
	rows, err := bob.All(ctx, executor, q, scan.StructMapper[curveSampleRow]())
	if err != nil {
		log.Fatal("could not load curve samples", log.ErrorField(err))
	}

	checked := 0
	bad := 0
	issueCount := 0
	for start := 0; start < len(rows); {
		end := start
		for end < len(rows) && rows[end].ID == rows[start].ID {
			end++
		}
		checked++
		if issues := validateCurve(rows[start:end]); len(issues) > 0 {
			bad++
			issueCount += len(issues)
			head := rows[start]
			for _, issue := range issues {
				log.Warn("curve issue",
					log.String("id", head.ID),
					log.Int("trackId", head.TrackID),
					log.String("car", head.CarName),
					log.String("issue", issue))
			}
		}
		start = end
	}

	sqlEmpty := `
SELECT fc.id, fc.track_id, fc.car_name
  FROM fuel_curve fc
 WHERE jsonb_array_length(COALESCE(fc.data->'samples', '[]'::jsonb)) = 0
   AND (fc.track_id = ? OR ? = 0)
   AND (fc.car_name = ? OR ? = '')
	`
	qEmpty := psql.RawQuery(sqlEmpty,
		psql.Arg(trackID),
		psql.Arg(trackID),
		psql.Arg(carName),
		psql.Arg(carName),
	)
	empty, err := bob.All(ctx, executor, qEmpty, scan.StructMapper[emptyCurveRow]())
	if err != nil {
		log.Fatal("could not load empty curves", log.ErrorField(err))
	}
	for i := range empty {
		log.Warn("curve issue",
			log.String("id", empty[i].ID),
			log.Int("trackId", empty[i].TrackID),
			log.String("car", empty[i].CarName),
			log.String("issue", "no samples"))
	}
	checked += len(empty)
	bad += len(empty)
	issueCount += len(empty)

	log.Info("curve check finished",
		log.Int("checked", checked),
		log.Int("curvesWithIssues", bad),
		log.Int("issues", issueCount))
}

// validateCurve reports inconsistencies of a single stored curve. The
// samples are expected in ascending pct order.
func validateCurve(samples []curveSampleRow) []string {
	issues := []string{}
	seen := map[int]bool{}
	var fuelAtZero *decimal.NullDecimal
	lastFuel := decimal.NullDecimal{}
	lastPct := 0
	for i := range samples {
		s := samples[i]
		if s.Pct < 0 || s.Pct >= model.NumBuckets {
			issues = append(issues, fmt.Sprintf("pct %d out of range", s.Pct))
			continue
		}
		if seen[s.Pct] {
			issues = append(issues, fmt.Sprintf("duplicate pct %d", s.Pct))
			continue
		}
		seen[s.Pct] = true
		if s.Pct == 0 {
			f := s.Fuel
			fuelAtZero = &f
		}
		if s.Fuel.Valid {
			if lastFuel.Valid && s.Fuel.Decimal.GreaterThan(lastFuel.Decimal) {
				issues = append(issues, fmt.Sprintf("fuel increases from pct %d to %d (%s -> %s)",
					lastPct, s.Pct, lastFuel.Decimal, s.Fuel.Decimal))
			}
			lastFuel = s.Fuel
			lastPct = s.Pct
		}
	}
	if fuelAtZero == nil {
		issues = append(issues, "no sample for pct 0")
	} else if !fuelAtZero.Valid {
		issues = append(issues, "no fuel reading for pct 0")
	}
	return issues
}

// the lib/pq driver insists on TLS unless told otherwise
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
