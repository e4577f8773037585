package dto

import "github.com/google/uuid"

type SegmentInput struct {
	Name     string `json:"name" binding:"required"`
	FilePath string `json:"filePath" binding:"required"`
	Script   string `json:"script"`
}

type OptionsInput struct {
	AddTransitions     *bool   `json:"addTransitions"`
	TransitionType     string  `json:"transitionType"`
	TransitionDuration float64 `json:"transitionDuration"`
	AddSubtitles       *bool   `json:"addSubtitles"`
	SubtitlePosition   string  `json:"subtitlePosition"`
	SubtitleFontSize   int     `json:"subtitleFontSize"`
	OptimizePlatform   string  `json:"optimizePlatform"`
}

type AssembleRequest struct {
	ProjectId uuid.UUID      `json:"projectId" binding:"required"`
	Segments  []SegmentInput `json:"segments"`
	Options   *OptionsInput  `json:"options"`
}

type AssembleResponse struct {
	JobId         uuid.UUID `json:"jobId"`
	SegmentsCount int       `json:"segmentsCount"`
}

type StatusResponse struct {
	JobId    uuid.UUID `json:"jobId"`
	Status   string    `json:"status"`
	Stage    string    `json:"stage"`
	Progress int       `json:"progress"`
	Error    string    `json:"error,omitempty"`
}

// AssemblyMessage is the AMQP body published by the upload service; it mirrors
// the HTTP submission payload.
type AssemblyMessage struct {
	ProjectId uuid.UUID      `json:"projectId"`
	Segments  []SegmentInput `json:"segments"`
	Options   *OptionsInput  `json:"options"`
}
