package nats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/enduroplan/fueltrace-service-go/pkg/model"
)

func Test_sessionLookupTransfer_Conversion(t *testing.T) {
	created := time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)
	sampleData := map[string]*model.SessionInfo{
		"sampleKey": {
			Key:     "sampleKey",
			Curve:   model.FuelCurveKey{TrackID: 18, CarName: "Dallara P217"},
			Owner:   "providerA",
			Created: created,
		},
		"otherKey": {
			Key:     "otherKey",
			Curve:   model.FuelCurveKey{TrackID: 266, CarName: "BMW M4 GT3"},
			Owner:   "providerB",
			Created: created,
		},
	}

	slt := sessionLookupTransfer{}
	binaryData, err := slt.ToBinary(sampleData)
	if err != nil {
		t.Fatalf("sessionLookupTransfer.ToBinary() error = %v", err)
	}

	result, err := slt.FromBinary(binaryData)
	if err != nil {
		t.Fatalf("sessionLookupTransfer.FromBinary() error = %v", err)
	}
	assert.Equal(t, sampleData, result)
}
