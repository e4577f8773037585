package entities

import (
	"time"

	"assembly-worker/constant"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Segment is one shot of the final timeline, in shot-list order.
type Segment struct {
	Name     string `json:"name"`
	FilePath string `json:"file_path"`
	Script   string `json:"script,omitempty"`
}

type AssemblyOptions struct {
	AddTransitions     bool                      `json:"add_transitions"`
	TransitionType     constant.TransitionType   `json:"transition_type"`
	TransitionDuration float64                   `json:"transition_duration"`
	AddSubtitles       bool                      `json:"add_subtitles"`
	SubtitlePosition   constant.SubtitlePosition `json:"subtitle_position"`
	SubtitleFontSize   int                       `json:"subtitle_font_size"`
	OptimizePlatform   constant.Platform         `json:"optimize_platform,omitempty"`
}

type AssemblyJob struct {
	ID          uuid.UUID                             `json:"id" gorm:"type:uuid;primary_key"`
	ProjectId   uuid.UUID                             `json:"project_id" gorm:"type:uuid;index:idx_assembly_jobs_project_id"`
	Status      constant.JobStatus                    `json:"status" gorm:"type:varchar(20);not null"`
	Stage       constant.Stage                        `json:"stage" gorm:"type:varchar(20)"`
	Progress    int                                   `json:"progress" gorm:"not null;default:0"`
	Segments    datatypes.JSONSlice[Segment]          `json:"segments"`
	Options     datatypes.JSONType[AssemblyOptions]   `json:"options"`
	OutputPath  string                                `json:"output_path" gorm:"type:varchar(500)"`
	ObjectKey   string                                `json:"object_key" gorm:"type:varchar(500)"`
	Error       string                                `json:"error" gorm:"type:text"`
	Diagnostics datatypes.JSONSlice[string]           `json:"diagnostics"`
	CreatedAt   time.Time                             `json:"created_at"`
	UpdatedAt   time.Time                             `json:"updated_at"`
}

func (AssemblyJob) TableName() string {
	return "assembly_jobs"
}
