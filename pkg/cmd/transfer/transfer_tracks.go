package transfer

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/enduroplan/fueltrace-service-go/log"
	trackrepos "github.com/enduroplan/fueltrace-service-go/pkg/repository/track"
)

func NewTransferTracksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracks",
		Short: "copies tracks from the source database",
		Run: func(cmd *cobra.Command, args []string) {
			transferTracks(cmd.Context())
		},
	}

	return cmd
}

func transferTracks(ctx context.Context) {
	setupDatabases()
	defer poolSource.Close()
	defer poolDest.Close()

	log.Info("Transferring tracks")

	sourceTracks, err := trackrepos.LoadAll(ctx, poolSource)
	if err != nil {
		log.Error("error loading tracks from source", log.ErrorField(err))
		return
	}
	copied := 0
	for _, t := range sourceTracks {
		log.Info("transferring track",
			log.Int("id", t.ID),
			log.String("name", t.Data.Name))
		if err := trackrepos.EnsureTrack(ctx, poolDest, t); err != nil {
			log.Error("error transferring track", log.ErrorField(err))
			continue
		}
		copied++
	}
	log.Info("Tracks transferred", log.Int("count", copied))
}
