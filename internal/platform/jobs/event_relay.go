package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	domain "github.com/hanko-field/carts/internal/domain"
	"github.com/hanko-field/carts/internal/platform/events"
)

// EventMessage is the JSON payload relayed for each cart event.
type EventMessage struct {
	Kind         string    `json:"kind"`
	CartID       string    `json:"cartId,omitempty"`
	StoreID      string    `json:"storeId"`
	ScopeKey     string    `json:"scope"`
	Status       string    `json:"status,omitempty"`
	ItemCount    int       `json:"itemCount,omitempty"`
	ActiveCartID *string   `json:"activeCartId,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// EventRelay republishes orchestrator events on a Pub/Sub topic. Messages use the cart scope as
// ordering key so subscribers observe each scope's events in emission order.
type EventRelay struct {
	topic  *pubsub.Topic
	logger *zap.Logger
}

// NewEventRelay constructs a relay and enables message ordering on topic.
func NewEventRelay(topic *pubsub.Topic, logger *zap.Logger) (*EventRelay, error) {
	if topic == nil {
		return nil, errors.New("event relay: topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	topic.EnableMessageOrdering = true
	return &EventRelay{topic: topic, logger: logger}, nil
}

// Run forwards events from sub until the subscription closes or ctx is cancelled. It closes sub
// on return and waits for queued messages to be sent.
func (r *EventRelay) Run(ctx context.Context, sub *events.Subscription[domain.CartEvent]) error {
	defer r.topic.Flush()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := r.relay(ctx, event); err != nil {
				r.logger.Warn("event relay: publish failed",
					zap.String("kind", string(event.Kind)),
					zap.String("cartID", event.CartID),
					zap.Error(err),
				)
			}
		}
	}
}

func (r *EventRelay) relay(ctx context.Context, event domain.CartEvent) error {
	msg := EventMessage{
		Kind:         string(event.Kind),
		CartID:       event.CartID,
		StoreID:      event.Scope.StoreID,
		ScopeKey:     event.Scope.Key(),
		ActiveCartID: event.ActiveCartID,
		OccurredAt:   event.OccurredAt.UTC(),
	}
	if event.Cart != nil {
		msg.Status = string(event.Cart.Status)
		msg.ItemCount = event.Cart.ItemCount()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal cart event: %w", err)
	}

	attrs := map[string]string{"kind": msg.Kind}
	setAttr(attrs, "cartId", msg.CartID)
	setAttr(attrs, "storeId", msg.StoreID)

	key := msg.ScopeKey
	result := r.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs, OrderingKey: key})
	if _, err := result.Get(ctx); err != nil {
		// A failed ordered publish pauses the key until resumed.
		r.topic.ResumePublish(key)
		return fmt.Errorf("publish cart event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
