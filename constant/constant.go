package constant

type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether the status can never change again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type Stage string

const (
	StageSubtitles Stage = "subtitles"
	StageMerge     Stage = "merge"
	StageOptimize  Stage = "optimize"
	StageFinalize  Stage = "finalize"
)

type TransitionType string

const (
	TransitionFade      TransitionType = "fade"
	TransitionWipe      TransitionType = "wipe"
	TransitionDissolve  TransitionType = "dissolve"
	TransitionSlideDown TransitionType = "slidedown"
	TransitionSlideUp   TransitionType = "slideup"
)

func (t TransitionType) Valid() bool {
	switch t {
	case TransitionFade, TransitionWipe, TransitionDissolve, TransitionSlideDown, TransitionSlideUp:
		return true
	}
	return false
}

type SubtitlePosition string

const (
	SubtitlePositionTop    SubtitlePosition = "top"
	SubtitlePositionCenter SubtitlePosition = "center"
	SubtitlePositionBottom SubtitlePosition = "bottom"
)

type Platform string

const (
	PlatformYoutube   Platform = "youtube"
	PlatformTiktok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
