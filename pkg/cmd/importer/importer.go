package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/aarondl/opt/null"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/config"
	"github.com/enduroplan/fueltrace-service-go/pkg/db/postgres"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	"github.com/enduroplan/fueltrace-service-go/pkg/service"
	"github.com/enduroplan/fueltrace-service-go/pkg/utils"
)

// ErrNoUsableLaps is returned when the laps path selected no lap with a
// positive lap time and recorded fuel levels.
var ErrNoUsableLaps = errors.New("no usable laps in input")

type (
	// lapRecord is the part of a third-party lap export we care about.
	lapRecord struct {
		LapTime    float64     `json:"lapTime"`
		Valid      bool        `json:"valid"`
		FuelLevels []fuelLevel `json:"fuelLevels"`
	}
	fuelLevel struct {
		Pct  int     `json:"pct"`
		Fuel float64 `json:"fuel"`
	}
)

var (
	trackID   int
	carName   string
	sourceTag string
	lapsPath  string
	trackName string
)

func NewImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import file",
		Short: "imports recorded fuel laps into the curve store",
		Long: `Reads a JSON export of recorded laps (for example a Garage61 export),
picks the fastest valid lap and stores its fuel levels as the reference
curve for the given track/car. The laps are selected via JSONPath, so
differently shaped exports can be imported by adjusting --laps-path.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), args[0])
		},
	}
	cmd.Flags().IntVar(&trackID, "track-id", 0,
		"track id to store the curve under")
	cmd.Flags().StringVar(&carName, "car-name", "",
		"car name to store the curve under")
	cmd.Flags().StringVar(&sourceTag, "source", "import",
		"source label for the stored curve")
	cmd.Flags().StringVar(&lapsPath, "laps-path", "$.laps[*]",
		"JSONPath selecting the lap records within the input")
	cmd.Flags().StringVar(&trackName, "track-name", "",
		"track display name (used when the track is created on the fly)")
	//nolint:errcheck // by design
	cmd.MarkFlagRequired("track-id")
	//nolint:errcheck // by design
	cmd.MarkFlagRequired("car-name")
	return cmd
}

func runImport(ctx context.Context, fileName string) error {
	logger := log.GetFromContext(ctx).Named("import")
	data, err := os.ReadFile(fileName)
	if err != nil {
		return err
	}
	curveData, err := ExtractCurve(string(data), lapsPath)
	if err != nil {
		return err
	}
	logger.Info("extracted curve",
		log.Int("samples", len(curveData.Samples)),
		log.Float64("lapTime", curveData.LapTime))

	// wait for database
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		logger.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}
	postgresAddr := utils.ExtractFromDBURL(config.DB)
	if err = utils.WaitForTCP(postgresAddr, timeout); err != nil {
		logger.Fatal("database  not ready", log.ErrorField(err))
	}
	pool := postgres.InitWithUrl(config.DB)
	defer pool.Close()

	req := &service.SaveCurveRequest{
		TrackID: trackID,
		CarName: carName,
		Source:  sourceTag,
		Data:    *curveData,
	}
	if trackName != "" {
		req.TrackInfo = &model.TrackInfo{ID: trackID, Name: trackName}
	}
	entry, err := service.InitCurveService(pool).SaveCurve(ctx, req)
	if err != nil {
		return err
	}
	logger.Info("curve imported",
		log.String("id", entry.ID.String()),
		log.Int("trackId", entry.TrackID),
		log.String("carName", entry.CarName))
	return nil
}

// ExtractCurve picks the fastest valid lap from the records selected by
// lapsPath and converts its fuel levels into curve samples.
func ExtractCurve(jsonData, lapsPath string) (*model.FuelCurveData, error) {
	obj, err := oj.ParseString(jsonData)
	if err != nil {
		return nil, err
	}
	path, err := jp.ParseString(lapsPath)
	if err != nil {
		return nil, err
	}
	res := path.Get(obj)
	laps := make([]lapRecord, 0, len(res))
	for _, r := range res {
		lap := lapRecord{}
		if uErr := oj.Unmarshal([]byte(oj.JSON(r)), &lap); uErr != nil {
			return nil, uErr
		}
		laps = append(laps, lap)
	}
	usable := lo.Filter(laps, func(l lapRecord, _ int) bool {
		return l.Valid && l.LapTime > 0 && len(l.FuelLevels) > 0
	})
	if len(usable) == 0 {
		return nil, ErrNoUsableLaps
	}
	best := lo.MinBy(usable, func(a, b lapRecord) bool {
		return a.LapTime < b.LapTime
	})
	return lapToCurve(best)
}

// duplicate buckets keep the first reading
func lapToCurve(lap lapRecord) (*model.FuelCurveData, error) {
	ret := &model.FuelCurveData{
		Samples: make([]model.FuelSample, 0, len(lap.FuelLevels)),
		LapTime: lap.LapTime,
	}
	seen := make(map[int]bool)
	for _, fl := range lap.FuelLevels {
		if fl.Pct < 0 || fl.Pct >= model.NumBuckets {
			return nil, fmt.Errorf("fuel level pct %d out of range", fl.Pct)
		}
		if seen[fl.Pct] {
			continue
		}
		seen[fl.Pct] = true
		ret.Samples = append(ret.Samples, model.FuelSample{
			Pct:  fl.Pct,
			Fuel: null.From(fl.Fuel),
		})
	}
	sort.Slice(ret.Samples, func(i, j int) bool {
		return ret.Samples[i].Pct < ret.Samples[j].Pct
	})
	return ret, nil
}
