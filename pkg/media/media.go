package media

import (
	"context"

	"assembly-worker/constant"
)

// Metadata is the probed shape of a media file.
type Metadata struct {
	Duration float64
	Width    int
	Height   int
	FPS      float64
	HasAudio bool
}

// EncodeSpec is a platform's target envelope. MaxDuration <= 0 means no trim.
type EncodeSpec struct {
	Width       int
	Height      int
	Bitrate     string
	MaxDuration float64
}

// Transformer is the external transform capability. Every call is a blocking
// opaque operation on local files and may fail with a generic error; fallback
// policy lives with the callers.
type Transformer interface {
	Probe(ctx context.Context, file string) (Metadata, error)
	Concat(ctx context.Context, files []string, output string) error
	Blend(ctx context.Context, fileA, fileB string, transition constant.TransitionType, duration float64, output string) error
	BurnSubtitle(ctx context.Context, file, text string, position constant.SubtitlePosition, fontSize int, output string) error
	Reencode(ctx context.Context, file string, spec EncodeSpec, output string) error
}
