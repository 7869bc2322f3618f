package service

import "github.com/enduroplan/fueltrace-service-go/pkg/model"

type RegisterSessionRequest struct {
	SessionKey string           `json:"sessionKey,omitempty"`
	TrackID    int              `json:"trackId"`
	CarName    string           `json:"carName"`
	TrackInfo  *model.TrackInfo `json:"trackInfo,omitempty"`
}

type SaveCurveRequest struct {
	TrackID   int                 `json:"trackId"`
	CarName   string              `json:"carName"`
	Source    string              `json:"source,omitempty"`
	Data      model.FuelCurveData `json:"data"`
	TrackInfo *model.TrackInfo    `json:"trackInfo,omitempty"`
}
