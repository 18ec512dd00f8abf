package app

import (
	"context"
	"encoding/json"
	"time"

	"campus_chat_service/internal/chat/domain"
	"campus_chat_service/internal/chat/repository"
	"campus_chat_service/pkg/logger"
	"campus_chat_service/pkg/metrics"

	"go.uber.org/zap"
)

// EventSubscriber live side of the fan-out used by websocket sessions
type EventSubscriber interface {
	Subscribe(ctx context.Context, target domain.TargetKind, targetID string, handler func(domain.Envelope)) error
}

// Fanout publish lifecycle events to user / conversation rooms through a Broker.
// At-most-once: no ack, no replay; sinks get a copy of every envelope.
type Fanout struct {
	broker  repository.Broker
	sinks   []repository.EventSink
	metrics *metrics.Metrics
}

// NewFanout create fan-out, metrics may be nil
func NewFanout(broker repository.Broker, m *metrics.Metrics, sinks ...repository.EventSink) *Fanout {
	return &Fanout{broker: broker, sinks: sinks, metrics: m}
}

// Publish wrap payload in an envelope and push it to the room of targetID
func (f *Fanout) Publish(ctx context.Context, event domain.EventType, target domain.TargetKind, targetID string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := domain.Envelope{
		Event:    event,
		Target:   target,
		TargetID: targetID,
		Payload:  raw,
		SentAt:   time.Now().UnixMilli(),
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}

	if err := f.broker.Publish(ctx, domain.Channel(target, targetID), b); err != nil {
		f.failed("broker")
		return err
	}
	if f.metrics != nil {
		f.metrics.EventsPublished.WithLabelValues(string(event), string(target)).Inc()
	}

	for _, sink := range f.sinks {
		if err := sink.Append(ctx, env); err != nil {
			f.failed("sink")
			logger.Log.Warn("event sink append failed", zap.String("event", string(event)), zap.Error(err))
		}
	}
	return nil
}

// Subscribe decode envelopes of a room for handler until ctx is done
func (f *Fanout) Subscribe(ctx context.Context, target domain.TargetKind, targetID string, handler func(domain.Envelope)) error {
	return f.broker.Subscribe(ctx, domain.Channel(target, targetID), func(payload []byte) {
		var env domain.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			logger.Log.Warn("drop malformed envelope", zap.String("target_id", targetID), zap.Error(err))
			return
		}
		handler(env)
	})
}

func (f *Fanout) failed(stage string) {
	if f.metrics != nil {
		f.metrics.PublishFailures.WithLabelValues(stage).Inc()
	}
}

// notifyUsers best effort publish to every user room, failures are only logged
func notifyUsers(ctx context.Context, pub domain.Publisher, event domain.EventType, userIDs []string, payload interface{}) {
	for _, id := range userIDs {
		if err := pub.Publish(ctx, event, domain.TargetUser, id, payload); err != nil {
			logger.Log.Error("fan-out publish failed",
				zap.String("event", string(event)),
				zap.String("user_id", id),
				zap.Error(err))
		}
	}
}

// notifyConversation best effort publish to the conversation room
func notifyConversation(ctx context.Context, pub domain.Publisher, event domain.EventType, conversationID string, payload interface{}) {
	if err := pub.Publish(ctx, event, domain.TargetConversation, conversationID, payload); err != nil {
		logger.Log.Error("fan-out publish failed",
			zap.String("event", string(event)),
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
}
