// Package worker drives the queue processing loop: receive, partition by
// event type, dispatch to handlers, merge outcomes, acknowledge and requeue.
package worker

import (
	"context"

	"github.com/notewellhq/notewell-backend/pkg/queue"
)

// Outcome is a handler's verdict over its batch. Acknowledge holds original
// deliveries to delete; Retry holds fresh copies to enqueue. A retried
// message appears in both: its original in Acknowledge, its bumped copy in
// Retry, so exactly one lineage stays in flight.
type Outcome struct {
	Acknowledge []queue.Message
	Retry       []queue.Message
}

// Ack marks the original delivery as done.
func (o *Outcome) Ack(msg queue.Message) {
	o.Acknowledge = append(o.Acknowledge, msg)
}

// RetryLater acknowledges the original delivery and queues its bumped copy.
func (o *Outcome) RetryLater(msg queue.Message) {
	o.Acknowledge = append(o.Acknowledge, msg)
	o.Retry = append(o.Retry, msg.RetryCopy())
}

// Merge folds another outcome into this one.
func (o *Outcome) Merge(other Outcome) {
	o.Acknowledge = append(o.Acknowledge, other.Acknowledge...)
	o.Retry = append(o.Retry, other.Retry...)
}

// Handler reduces a batch of same-event messages to an outcome. Business
// failures must be folded into the outcome; a returned error is treated as a
// bug and kills the process.
type Handler interface {
	Handle(ctx context.Context, msgs []queue.Message) (Outcome, error)
}
