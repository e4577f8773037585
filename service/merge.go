package service

import (
	"context"
	"fmt"
	"path/filepath"

	"assembly-worker/entities"
	"github.com/rs/zerolog"
)

// mergeSegments folds the ordered segment files into one timeline. With
// transitions enabled each subsequent segment is blended onto the running
// prefix; the first blend failure degrades the whole remainder to plain
// concatenation so the job is never left half-blended. Returns exactly one
// file.
func (s *assemblyService) mergeSegments(ctx context.Context, workDir string, files []string, opts entities.AssemblyOptions) (string, []string, error) {
	if len(files) == 1 {
		return files[0], nil, nil
	}

	if !opts.AddTransitions {
		merged := filepath.Join(workDir, "merged.mp4")
		if err := s.transformer.Concat(ctx, files, merged); err != nil {
			return "", nil, fmt.Errorf("concat segments: %w", err)
		}
		return merged, nil, nil
	}

	prefix := files[0]
	for i := 1; i < len(files); i++ {
		duration, err := s.clampTransition(ctx, prefix, files[i], opts.TransitionDuration)
		if err == nil {
			blended := filepath.Join(workDir, fmt.Sprintf("blend_%03d.mp4", i))
			err = s.transformer.Blend(ctx, prefix, files[i], opts.TransitionType, duration, blended)
			if err == nil {
				prefix = blended
				continue
			}
		}

		zerolog.Ctx(ctx).Warn().Err(err).
			Int("segment_index", i).
			Msg("transition blend failed, falling back to concatenation for the remainder")

		merged := filepath.Join(workDir, "merged.mp4")
		remainder := append([]string{prefix}, files[i:]...)
		if concatErr := s.transformer.Concat(ctx, remainder, merged); concatErr != nil {
			return "", nil, fmt.Errorf("concat fallback after blend failure: %w", concatErr)
		}
		note := fmt.Sprintf("transitions downgraded to concatenation from segment %d: %v", i, err)
		return merged, []string{note}, nil
	}

	return prefix, nil, nil
}

// clampTransition bounds the transition duration to be positive and shorter
// than either adjacent input. Probe failures surface as errors so the caller
// treats them like a blend failure.
func (s *assemblyService) clampTransition(ctx context.Context, fileA, fileB string, duration float64) (float64, error) {
	metaA, err := s.transformer.Probe(ctx, fileA)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", fileA, err)
	}
	metaB, err := s.transformer.Probe(ctx, fileB)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", fileB, err)
	}

	if duration <= 0 {
		duration = 0.8
	}
	shorter := metaA.Duration
	if metaB.Duration < shorter {
		shorter = metaB.Duration
	}
	if shorter <= 0 {
		return 0, fmt.Errorf("segment duration unknown")
	}
	if duration >= shorter {
		duration = shorter / 2
	}
	return duration, nil
}
