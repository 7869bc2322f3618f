package model

import (
	"time"

	"github.com/aarondl/opt/null"
)

type (
	// TelemetryTick is one reading from the telemetry feed.
	// LapDistPct is a fraction of the lap (0..1), FuelLevel is liters.
	TelemetryTick struct {
		SessionTime float64 `json:"sessionTime"`
		LapDistPct  float64 `json:"lapDistPct"`
		FuelLevel   float64 `json:"fuelLevel"`
	}

	// DeltaUpdate is published after each processed tick.
	// Delta is null while the comparison is unavailable (no curve loaded
	// or no lap start seen yet).
	DeltaUpdate struct {
		SessionKey   string            `json:"sessionKey"`
		SessionTime  float64           `json:"sessionTime"`
		Pct          float64           `json:"pct"`
		FuelLevel    float64           `json:"fuelLevel"`
		Delta        null.Val[float64] `json:"delta"`
		LapStartFuel null.Val[float64] `json:"lapStartFuel"`
		Stamp        time.Time         `json:"stamp"`
	}

	// TraceSnapshot holds both curves for a renderer.
	TraceSnapshot struct {
		Ideal []FuelSample `json:"ideal"`
		Live  []FuelSample `json:"live"`
	}
)
