package service

import (
	"context"
	"fmt"
	"path/filepath"

	"assembly-worker/constant"
	"assembly-worker/pkg/media"
	"github.com/rs/zerolog"
)

// Target envelopes per distribution platform. MaxDuration is the platform's
// hard cap; trimming keeps the start of the timeline.
var platformSpecs = map[constant.Platform]media.EncodeSpec{
	constant.PlatformYoutube:   {Width: 1920, Height: 1080, Bitrate: "8000k"},
	constant.PlatformTiktok:    {Width: 1080, Height: 1920, Bitrate: "6000k", MaxDuration: 180},
	constant.PlatformInstagram: {Width: 1080, Height: 1920, Bitrate: "5000k", MaxDuration: 90},
}

// optimizeForPlatform re-encodes the merged file to the platform envelope.
// An absent or unrecognized platform passes the file through unchanged.
// Unlike the earlier stages there is no fallback here: a failed re-encode
// fails the job.
func (s *assemblyService) optimizeForPlatform(ctx context.Context, workDir, input string, platform constant.Platform) (string, []string, error) {
	spec, ok := platformSpecs[platform]
	if !ok {
		output := filepath.Join(workDir, "final.mp4")
		if err := copyFile(input, output); err != nil {
			return "", nil, fmt.Errorf("copy merged output: %w", err)
		}
		var notes []string
		if platform != "" {
			notes = append(notes, fmt.Sprintf("unrecognized platform %q, skipped optimization", platform))
		}
		return output, notes, nil
	}

	zerolog.Ctx(ctx).Info().
		Str("platform", string(platform)).
		Int("width", spec.Width).
		Int("height", spec.Height).
		Msg("optimizing for platform")

	output := filepath.Join(workDir, "optimized.mp4")
	if err := s.transformer.Reencode(ctx, input, spec, output); err != nil {
		return "", nil, fmt.Errorf("optimize for %s: %w", platform, err)
	}
	return output, nil, nil
}
