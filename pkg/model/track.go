package model

type DbTrack struct {
	ID   int       `json:"id"`
	Data TrackInfo `json:"data"`
}

type (
	// TrackInfo carries the track metadata the planning tool needs.
	TrackInfo struct {
		ID        int     `json:"id"`
		Name      string  `json:"name"`
		ShortName string  `json:"shortName"`
		Config    string  `json:"config"`
		Length    float64 `json:"length"`
		Pit       PitInfo `json:"pit"`
	}
	// PitInfo locates the pit lane, values are percentages of the lap
	// distance except for the lane length (meters).
	PitInfo struct {
		Entry      float64 `json:"entry"`
		Exit       float64 `json:"exit"`
		LaneLength float64 `json:"laneLength"`
	}
)
