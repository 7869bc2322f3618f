package model

import "time"

// SessionInfo describes a live comparison session.
type SessionInfo struct {
	Key     string       `json:"key"`
	Curve   FuelCurveKey `json:"curve"`
	Owner   string       `json:"owner,omitempty"`
	Created time.Time    `json:"created"`
}
