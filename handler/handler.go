package handler

import (
	"context"
	"encoding/json"
	"errors"

	"assembly-worker/dto"
	"assembly-worker/service"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type ServiceDependencies struct {
	AssemblyService service.AssemblyService
}

// AssemblyHandler submits queued assembly requests arriving over AMQP. An
// empty segment list is rejected for good: retrying cannot make it valid.
func AssemblyHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var req dto.AssemblyMessage
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal assembly message")
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("project_id", req.ProjectId.String()).
		Int("segments", len(req.Segments)).
		Msg("received assembly message")

	jobId, err := deps.AssemblyService.Submit(ctx, req.ProjectId,
		service.SegmentsFromInput(req.Segments), service.OptionsFromInput(req.Options))
	if errors.Is(err, service.ErrNoSegments) {
		zerolog.Ctx(ctx).Warn().Str("project_id", req.ProjectId.String()).Msg("assembly message with no segments, dropping")
		return nil
	}
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", jobId.String()).
		Str("project_id", req.ProjectId.String()).
		Msg("assembly job submitted from queue")
	return nil
}
