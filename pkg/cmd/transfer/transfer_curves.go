package transfer

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/enduroplan/fueltrace-service-go/log"
	"github.com/enduroplan/fueltrace-service-go/pkg/model"
	curverepos "github.com/enduroplan/fueltrace-service-go/pkg/repository/fuelcurve"
)

var trackID int

func NewTransferCurvesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "curves",
		Short: "copies fuel curves from the source database",
		Long: `Copies stored fuel curves from the source database into the configured
database. Tracks referenced by the curves must already exist there
(run 'transfer tracks' first).`,
		Run: func(cmd *cobra.Command, args []string) {
			transferCurves(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&trackID, "track-id", 0, "only copy curves of this track")
	return cmd
}

func transferCurves(ctx context.Context) {
	setupDatabases()
	defer poolSource.Close()
	defer poolDest.Close()

	log.Info("Transferring curves")

	var summaries []*model.FuelCurveSummary
	var err error
	if trackID > 0 {
		summaries, err = curverepos.LoadSummariesByTrack(ctx, poolSource, trackID)
	} else {
		summaries, err = curverepos.LoadSummaries(ctx, poolSource)
	}
	if err != nil {
		log.Error("error loading curves from source", log.ErrorField(err))
		return
	}
	copied := 0
	// summaries arrive newest first, the destination assigns fresh record
	// stamps on insert, so copy oldest first to keep latest-wins intact
	for i := len(summaries) - 1; i >= 0; i-- {
		curve, err := curverepos.LoadById(ctx, poolSource, summaries[i].ID)
		if err != nil {
			log.Error("error loading curve",
				log.String("id", summaries[i].ID.String()),
				log.ErrorField(err))
			continue
		}
		log.Info("transferring curve",
			log.String("id", curve.ID.String()),
			log.Int("trackId", curve.TrackID),
			log.String("car", curve.CarName))
		if _, err := curverepos.Create(ctx, poolDest, curve); err != nil {
			log.Error("error transferring curve", log.ErrorField(err))
			continue
		}
		copied++
	}
	log.Info("Curves transferred", log.Int("count", copied))
}
