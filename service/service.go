package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"assembly-worker/config"
	"assembly-worker/constant"
	"assembly-worker/dto"
	"assembly-worker/entities"
	"assembly-worker/pkg/media"
	"assembly-worker/repository"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

var (
	ErrNoSegments = errors.New("no segments to assemble")
	ErrNotReady   = errors.New("assembly not completed yet")

	errAlreadyClaimed = errors.New("job already claimed")
	errCancelled      = errors.New("assembly cancelled")
)

const (
	progressSubtitlesDone = 20
	progressMergeDone     = 50
	progressOptimizeDone  = 80
	progressCompleted     = 100
)

// AssemblyService owns the assembly job lifecycle: it is the only writer of
// job status, progress and stage.
type AssemblyService interface {
	Submit(ctx context.Context, projectId uuid.UUID, segments []entities.Segment, opts entities.AssemblyOptions) (uuid.UUID, error)
	Status(ctx context.Context, id uuid.UUID) (dto.StatusResponse, error)
	Output(ctx context.Context, id uuid.UUID) (string, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

type assemblyService struct {
	store       repository.Store
	transformer media.Transformer
	cfg         *config.Config
	baseCtx     context.Context

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

// NewAssemblyService wires the orchestrator. baseCtx carries the process
// logger and bounds the lifetime of background jobs.
func NewAssemblyService(baseCtx context.Context, store repository.Store, transformer media.Transformer, cfg *config.Config) AssemblyService {
	return &assemblyService{
		store:       store,
		transformer: transformer,
		cfg:         cfg,
		baseCtx:     baseCtx,
		cancels:     make(map[uuid.UUID]context.CancelFunc),
	}
}

// OptionsFromInput applies the submission defaults: fade transitions of 0.8s,
// bottom subtitles at font size 48, optimized for youtube.
func OptionsFromInput(in *dto.OptionsInput) entities.AssemblyOptions {
	opts := entities.AssemblyOptions{
		AddTransitions:     true,
		TransitionType:     constant.TransitionFade,
		TransitionDuration: 0.8,
		AddSubtitles:       true,
		SubtitlePosition:   constant.SubtitlePositionBottom,
		SubtitleFontSize:   48,
		OptimizePlatform:   constant.PlatformYoutube,
	}
	if in == nil {
		return opts
	}
	if in.AddTransitions != nil {
		opts.AddTransitions = *in.AddTransitions
	}
	if t := constant.TransitionType(in.TransitionType); t.Valid() {
		opts.TransitionType = t
	}
	if in.TransitionDuration > 0 {
		opts.TransitionDuration = in.TransitionDuration
	}
	if in.AddSubtitles != nil {
		opts.AddSubtitles = *in.AddSubtitles
	}
	switch p := constant.SubtitlePosition(in.SubtitlePosition); p {
	case constant.SubtitlePositionTop, constant.SubtitlePositionCenter, constant.SubtitlePositionBottom:
		opts.SubtitlePosition = p
	}
	if in.SubtitleFontSize > 0 {
		opts.SubtitleFontSize = in.SubtitleFontSize
	}
	if in.OptimizePlatform != "" {
		opts.OptimizePlatform = constant.Platform(in.OptimizePlatform)
	}
	return opts
}

func SegmentsFromInput(in []dto.SegmentInput) []entities.Segment {
	segments := make([]entities.Segment, 0, len(in))
	for _, s := range in {
		segments = append(segments, entities.Segment{
			Name:     s.Name,
			FilePath: s.FilePath,
			Script:   s.Script,
		})
	}
	return segments
}

func (s *assemblyService) Submit(ctx context.Context, projectId uuid.UUID, segments []entities.Segment, opts entities.AssemblyOptions) (uuid.UUID, error) {
	if len(segments) == 0 {
		return uuid.Nil, ErrNoSegments
	}

	job := &entities.AssemblyJob{
		ID:        uuid.New(),
		ProjectId: projectId,
		Status:    constant.JobStatusQueued,
		Segments:  datatypes.NewJSONSlice(segments),
		Options:   datatypes.NewJSONType(opts),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("create assembly job: %w", err)
	}

	jobCtx, cancel := context.WithCancel(s.baseCtx)
	s.mu.Lock()
	s.cancels[job.ID] = cancel
	s.mu.Unlock()

	zerolog.Ctx(ctx).Info().
		Str("job_id", job.ID.String()).
		Str("project_id", projectId.String()).
		Int("segments", len(segments)).
		Msg("assembly job queued")

	go s.run(jobCtx, job.ID)

	return job.ID, nil
}

func (s *assemblyService) Status(ctx context.Context, id uuid.UUID) (dto.StatusResponse, error) {
	job, err := s.store.FindJobById(ctx, id)
	if err != nil {
		return dto.StatusResponse{}, err
	}
	return dto.StatusResponse{
		JobId:    job.ID,
		Status:   string(job.Status),
		Stage:    string(job.Stage),
		Progress: job.Progress,
		Error:    job.Error,
	}, nil
}

func (s *assemblyService) Output(ctx context.Context, id uuid.UUID) (string, error) {
	job, err := s.store.FindJobById(ctx, id)
	if err != nil {
		return "", err
	}
	if job.Status != constant.JobStatusCompleted {
		return "", ErrNotReady
	}
	return job.OutputPath, nil
}

// Cancel is cooperative: the running job observes it between stages. No-op
// once the job is terminal.
func (s *assemblyService) Cancel(ctx context.Context, id uuid.UUID) error {
	job, err := s.store.FindJobById(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}

	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	zerolog.Ctx(ctx).Info().Str("job_id", id.String()).Msg("assembly cancellation requested")
	return nil
}

// run executes the three stages sequentially for one job. Each job owns a
// work directory keyed by its id; no two jobs ever share files.
func (s *assemblyService) run(ctx context.Context, id uuid.UUID) {
	defer func() {
		s.mu.Lock()
		delete(s.cancels, id)
		s.mu.Unlock()
	}()

	logger := zerolog.Ctx(s.baseCtx).With().Str("job_id", id.String()).Logger()
	ctx = logger.WithContext(ctx)

	// Cancelled before being claimed.
	if s.cancelled(ctx, id, constant.StageSubtitles) {
		return
	}

	if err := s.claim(id); err != nil {
		if !errors.Is(err, errAlreadyClaimed) {
			logger.Error().Err(err).Msg("failed to claim job")
		}
		return
	}

	job, err := s.store.FindJobById(s.baseCtx, id)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load claimed job")
		return
	}
	segments := []entities.Segment(job.Segments)
	opts := job.Options.Data()

	workDir := filepath.Join(s.cfg.WorkDir, id.String())
	defer os.RemoveAll(workDir)
	if err := os.MkdirAll(workDir, os.ModePerm); err != nil {
		s.fail(id, constant.StageSubtitles, fmt.Errorf("create work directory: %w", err))
		return
	}

	logger.Info().Int("segments", len(segments)).Msg("processing assembly job")

	prepared, notes := s.prepareSegments(ctx, workDir, segments, opts)
	if s.cancelled(ctx, id, constant.StageSubtitles) {
		return
	}
	if err := s.advance(id, constant.StageMerge, progressSubtitlesDone, notes); err != nil {
		logger.Error().Err(err).Msg("failed to record progress")
		return
	}

	merged, notes, err := s.mergeSegments(ctx, workDir, prepared, opts)
	if err != nil {
		s.fail(id, constant.StageMerge, err)
		return
	}
	if s.cancelled(ctx, id, constant.StageMerge) {
		return
	}
	if err := s.advance(id, constant.StageOptimize, progressMergeDone, notes); err != nil {
		logger.Error().Err(err).Msg("failed to record progress")
		return
	}

	optimized, notes, err := s.optimizeForPlatform(ctx, workDir, merged, opts.OptimizePlatform)
	if err != nil {
		s.fail(id, constant.StageOptimize, err)
		return
	}
	if s.cancelled(ctx, id, constant.StageOptimize) {
		return
	}
	if err := s.advance(id, constant.StageFinalize, progressOptimizeDone, notes); err != nil {
		logger.Error().Err(err).Msg("failed to record progress")
		return
	}

	outputPath, objectKey, err := s.finalize(ctx, id, optimized)
	if err != nil {
		s.fail(id, constant.StageFinalize, err)
		return
	}

	err = s.store.UpdateJob(s.baseCtx, id, func(job *entities.AssemblyJob) error {
		job.Status = constant.JobStatusCompleted
		job.Progress = progressCompleted
		job.OutputPath = outputPath
		job.ObjectKey = objectKey
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to record completion")
		return
	}
	logger.Info().Str("output_path", outputPath).Msg("assembly job completed")
}

// claim moves the job from QUEUED to PROCESSING exactly once.
func (s *assemblyService) claim(id uuid.UUID) error {
	return s.store.UpdateJob(s.baseCtx, id, func(job *entities.AssemblyJob) error {
		if job.Status != constant.JobStatusQueued {
			return errAlreadyClaimed
		}
		job.Status = constant.JobStatusProcessing
		job.Stage = constant.StageSubtitles
		return nil
	})
}

func (s *assemblyService) advance(id uuid.UUID, next constant.Stage, progress int, notes []string) error {
	return s.store.UpdateJob(s.baseCtx, id, func(job *entities.AssemblyJob) error {
		job.Stage = next
		if progress > job.Progress {
			job.Progress = progress
		}
		job.Diagnostics = append(job.Diagnostics, notes...)
		return nil
	})
}

// cancelled checks the cooperative cancellation flag between stages and, when
// set, marks the job failed. Progress stays at its last reported value.
func (s *assemblyService) cancelled(ctx context.Context, id uuid.UUID, stage constant.Stage) bool {
	if ctx.Err() == nil {
		return false
	}
	s.fail(id, stage, errCancelled)
	return true
}

func (s *assemblyService) fail(id uuid.UUID, stage constant.Stage, cause error) {
	err := s.store.UpdateJob(s.baseCtx, id, func(job *entities.AssemblyJob) error {
		if job.Status.Terminal() {
			return nil
		}
		job.Status = constant.JobStatusFailed
		job.Stage = stage
		job.Error = cause.Error()
		return nil
	})
	logger := zerolog.Ctx(s.baseCtx)
	if err != nil {
		logger.Error().Err(err).Str("job_id", id.String()).Msg("failed to record job failure")
		return
	}
	logger.Error().Err(cause).Str("job_id", id.String()).Str("stage", string(stage)).Msg("assembly job failed")
}

// finalize moves the optimizer output to the job's canonical path and, when an
// artifact store is configured, publishes it there.
func (s *assemblyService) finalize(ctx context.Context, id uuid.UUID, optimized string) (string, string, error) {
	if err := os.MkdirAll(s.cfg.OutputDir, os.ModePerm); err != nil {
		return "", "", fmt.Errorf("create output directory: %w", err)
	}
	outputPath, err := filepath.Abs(filepath.Join(s.cfg.OutputDir, id.String()+".mp4"))
	if err != nil {
		return "", "", err
	}
	if err := moveFile(optimized, outputPath); err != nil {
		return "", "", fmt.Errorf("move output into place: %w", err)
	}

	objectKey := ""
	if s.cfg.Storage != nil {
		objectKey = fmt.Sprintf("assemblies/%s/final.mp4", id.String())
		_, err := s.cfg.Storage.FPutObject(ctx, s.cfg.MinIOBucket, objectKey, outputPath, minio.PutObjectOptions{
			ContentType: "video/mp4",
		})
		if err != nil {
			// The local artifact is authoritative; publishing is best effort.
			zerolog.Ctx(ctx).Warn().Err(err).Str("object_key", objectKey).Msg("failed to publish output to storage")
			objectKey = ""
		}
	}
	return outputPath, objectKey, nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Rename fails across filesystems; fall back to copy.
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
