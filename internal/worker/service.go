package worker

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/notewellhq/notewell-backend/pkg/config"
	"github.com/notewellhq/notewell-backend/pkg/enums"
	"github.com/notewellhq/notewell-backend/pkg/logger"
	"github.com/notewellhq/notewell-backend/pkg/metrics"
	"github.com/notewellhq/notewell-backend/pkg/queue"
)

// Queue is the gateway slice the loop drives.
type Queue interface {
	ReceiveBatch(ctx context.Context) ([]queue.Message, error)
	DeleteBatch(ctx context.Context, msgs []queue.Message) error
	EnqueueBatch(ctx context.Context, msgs []queue.Message) error
}

// Service is the queue processing loop.
type Service struct {
	queue    Queue
	registry *Registry
	log      *logger.Logger
	metrics  *metrics.WorkerMetrics
	cfg      config.WorkerConfig
}

func NewService(q Queue, registry *Registry, log *logger.Logger, m *metrics.WorkerMetrics, cfg config.WorkerConfig) (*Service, error) {
	if q == nil {
		return nil, fmt.Errorf("queue gateway is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("handler registry is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if m == nil {
		return nil, fmt.Errorf("worker metrics are required")
	}
	return &Service{queue: q, registry: registry, log: log, metrics: m, cfg: cfg}, nil
}

// Run drains the queue until the context is cancelled. Any error escaping a
// handler, or any failure of the queue I/O itself, is returned as fatal; the
// caller logs it and exits after a grace delay.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info(ctx, "queue worker started")
	for {
		if err := ctx.Err(); err != nil {
			s.log.Info(ctx, "queue worker stopping")
			return nil
		}

		msgs, err := s.queue.ReceiveBatch(ctx)
		if err != nil {
			if stderrors.Is(err, context.Canceled) || ctx.Err() != nil {
				s.log.Info(ctx, "queue worker stopping")
				return nil
			}
			return fmt.Errorf("receiving batch: %w", err)
		}

		if err := s.handleBatch(ctx, msgs); err != nil {
			return err
		}
	}
}

type groupResult struct {
	event   enums.EventType
	outcome Outcome
	err     error
	took    time.Duration
}

// handleBatch partitions the delivery by event type, runs every group's
// handler concurrently, merges the outcomes, then performs the queue I/O
// once for the whole batch.
func (s *Service) handleBatch(ctx context.Context, msgs []queue.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	// Stable partition: group order follows first occurrence, order within
	// a group is preserved.
	var order []enums.EventType
	groups := map[enums.EventType][]queue.Message{}
	for _, msg := range msgs {
		if _, ok := groups[msg.Event]; !ok {
			order = append(order, msg.Event)
		}
		groups[msg.Event] = append(groups[msg.Event], msg)
	}

	results := make([]groupResult, len(order))
	var wg sync.WaitGroup
	for i, event := range order {
		group := groups[event]
		s.metrics.IncReceived(event.String(), len(group))

		handler, err := s.registry.Lookup(event)
		if err != nil {
			return err
		}

		wg.Add(1)
		go func(i int, event enums.EventType, handler Handler, group []queue.Message) {
			defer wg.Done()
			started := time.Now()
			groupCtx := s.log.WithEventType(ctx, event.String())
			outcome, err := handler.Handle(groupCtx, group)
			results[i] = groupResult{event: event, outcome: outcome, err: err, took: time.Since(started)}
		}(i, event, handler, group)
	}
	wg.Wait()

	var merged Outcome
	for _, result := range results {
		if result.err != nil {
			s.log.Fatal(ctx, "handler error escaped, shutting down", result.err)
			return fmt.Errorf("handler for %s: %w", result.event, result.err)
		}
		merged.Merge(result.outcome)
		s.metrics.ObserveBatch(result.event.String(), result.took)
	}

	if len(merged.Acknowledge) > 0 {
		if err := s.queue.DeleteBatch(ctx, merged.Acknowledge); err != nil {
			s.log.Fatal(ctx, "acknowledging batch failed, shutting down", err)
			return fmt.Errorf("acknowledging batch: %w", err)
		}
		for _, msg := range merged.Acknowledge {
			s.metrics.IncAcked(msg.Event.String(), 1)
		}
	}
	if len(merged.Retry) > 0 {
		if err := s.queue.EnqueueBatch(ctx, merged.Retry); err != nil {
			s.log.Fatal(ctx, "requeueing batch failed, shutting down", err)
			return fmt.Errorf("requeueing batch: %w", err)
		}
		for _, msg := range merged.Retry {
			s.metrics.IncRetried(msg.Event.String(), 1)
		}
	}
	return nil
}
