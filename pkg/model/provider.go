package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// DbProvider is an upstream data source allowed to register sessions and
// feed telemetry. APIKeyHash holds the sha256 of the issued key, the key
// itself is never stored.
type DbProvider struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	APIKeyHash  string    `json:"-"`
	Active      bool      `json:"active"`
	RecordStamp time.Time `json:"recordStamp"`
}
