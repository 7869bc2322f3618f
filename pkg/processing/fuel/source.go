package fuel

import (
	"context"
	"errors"

	"github.com/enduroplan/fueltrace-service-go/pkg/model"
)

var (
	// ErrCurveNotFound signals that no curve exists for the requested key.
	// Sources return it to distinguish the empty result from a failed fetch.
	ErrCurveNotFound = errors.New("no fuel curve for key")
	// ErrNoSource is returned by LoadIdeal when no source is configured.
	ErrNoSource = errors.New("no curve source configured")
)

// Source delivers the recorded reference lap for a track/car pair.
type Source interface {
	IdealLap(ctx context.Context, key model.FuelCurveKey) (*model.FuelCurveData, error)
}
