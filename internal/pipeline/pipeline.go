// Package pipeline wires the queue, intake stage, and worker dispatch into a
// running service loop for local mode.
package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"adforge/internal/brief"
	"adforge/internal/intake"
	"adforge/internal/queue"
)

// Pipeline consumes brief notifications and drives them through intake. The
// downstream fan-out happens inside the dispatcher the intake handler was
// built with.
type Pipeline struct {
	source queue.Source
	intake *intake.Handler
	log    *zap.Logger
}

// New creates a pipeline.
func New(source queue.Source, handler *intake.Handler, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		source: source,
		intake: handler,
		log:    logger.Named("pipeline"),
	}
}

// Run consumes notifications until ctx is cancelled or the source closes.
//
// Acknowledgment policy: a notification is acknowledged after successful
// intake, and also when the brief itself is invalid — a malformed brief is
// terminal and redelivering it would only fail again. Transient failures
// (storage, dispatch) leave the message unacknowledged for redelivery.
func (p *Pipeline) Run(ctx context.Context) error {
	ch, err := p.source.Start(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			p.handle(ctx, n)
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, n queue.Notification) {
	campaignID, err := p.intake.Handle(ctx, n)
	switch {
	case err == nil:
		p.log.Info("campaign accepted",
			zap.String("campaign_id", campaignID),
			zap.String("key", n.Key))
	case errors.Is(err, brief.ErrInvalidBrief):
		p.log.Warn("brief rejected, not retrying",
			zap.String("key", n.Key),
			zap.Error(err))
	default:
		p.log.Error("intake failed, leaving message for redelivery",
			zap.String("key", n.Key),
			zap.Error(err))
		return
	}

	if n.Ack != nil {
		if err := n.Ack(ctx); err != nil {
			p.log.Warn("ack failed", zap.String("key", n.Key), zap.Error(err))
		}
	}
}
