package service

import (
	"context"
	"fmt"
	"path/filepath"

	"assembly-worker/entities"
	"github.com/rs/zerolog"
)

// prepareSegments burns each segment's script into the frame. Segments are
// processed independently: a captioning failure falls back to the original
// file so no segment is ever dropped. The returned list always has one path
// per input segment, in shot order.
func (s *assemblyService) prepareSegments(ctx context.Context, workDir string, segments []entities.Segment, opts entities.AssemblyOptions) ([]string, []string) {
	paths := make([]string, 0, len(segments))
	var notes []string

	for i, segment := range segments {
		if !opts.AddSubtitles || segment.Script == "" {
			paths = append(paths, segment.FilePath)
			continue
		}

		captioned := filepath.Join(workDir, fmt.Sprintf("captioned_%03d.mp4", i))
		err := s.transformer.BurnSubtitle(ctx, segment.FilePath, segment.Script, opts.SubtitlePosition, opts.SubtitleFontSize, captioned)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).
				Str("segment", segment.Name).
				Msg("failed to burn subtitle, using original segment")
			notes = append(notes, fmt.Sprintf("subtitles skipped for segment %q: %v", segment.Name, err))
			paths = append(paths, segment.FilePath)
			continue
		}
		paths = append(paths, captioned)
	}

	return paths, notes
}
