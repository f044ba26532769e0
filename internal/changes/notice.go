// Package changes announces successful mutations to in-process subscribers and,
// when configured, to a NATS bus.
package changes

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/clubsite/internal/records"
	"go.uber.org/zap"
)

// Kind enumerates mutation kinds.
type Kind string

const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	KindDeleted Kind = "deleted"
)

const topicPrefix = "clubsite"

// Notice describes one committed mutation.
type Notice struct {
	Table    records.Table    `json:"table"`
	Kind     Kind             `json:"kind"`
	RecordID records.RecordID `json:"record_id"`
	At       time.Time        `json:"at"`
}

// Topic returns the bus subject for the notice, e.g. clubsite.projects.created.
func (n Notice) Topic() string {
	return topicPrefix + "." + n.Table.String() + "." + string(n.Kind)
}

// Notifier receives committed mutations.
type Notifier interface {
	Notify(ctx context.Context, notice Notice)
}

// Sink is an in-process consumer of notices.
type Sink func(Notice)

// Hub fans a notice out to local sinks and to the bus publisher. Bus failures are
// logged and never reach the caller: the mutation has already been committed.
type Hub struct {
	publisher Publisher
	sinks     []Sink
	logger    *zap.Logger
}

// NewHub constructs a Hub. A nil publisher is replaced with a no-op.
func NewHub(publisher Publisher, logger *zap.Logger, sinks ...Sink) *Hub {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		publisher: publisher,
		sinks:     sinks,
		logger:    logger,
	}
}

// Notify implements Notifier.
func (h *Hub) Notify(ctx context.Context, notice Notice) {
	if notice.At.IsZero() {
		notice.At = time.Now().UTC()
	}
	for _, sink := range h.sinks {
		sink(notice)
	}
	if err := h.publisher.Publish(ctx, notice); err != nil {
		h.logger.Warn("change notice publish failed",
			zap.String("topic", notice.Topic()),
			zap.String("record_id", notice.RecordID.String()),
			zap.Error(err))
	}
}
