package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/hanko-field/carts/internal/services"
)

// Analytics event names carried in the "event" attribute.
const (
	AnalyticsCartCreated   = "cart_created"
	AnalyticsCartUpdated   = "cart_updated"
	AnalyticsCartDeleted   = "cart_deleted"
	AnalyticsActiveChanged = "active_cart_changed"
	AnalyticsItemAdded     = "item_added"
	AnalyticsItemUpdated   = "item_updated"
	AnalyticsItemRemoved   = "item_removed"
)

// AnalyticsMessage is the JSON payload published for every analytics callback.
type AnalyticsMessage struct {
	Event        string    `json:"event"`
	CartID       string    `json:"cartId,omitempty"`
	StoreID      string    `json:"storeId,omitempty"`
	ProfileID    *string   `json:"profileId,omitempty"`
	SessionID    *string   `json:"sessionId,omitempty"`
	Status       string    `json:"status,omitempty"`
	ItemCount    int       `json:"itemCount,omitempty"`
	ItemID       string    `json:"itemId,omitempty"`
	ProductID    string    `json:"productId,omitempty"`
	Quantity     int       `json:"quantity,omitempty"`
	ActiveCartID *string   `json:"activeCartId,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// PubSubAnalyticsSink forwards orchestrator analytics callbacks to a Pub/Sub topic. Publishing
// never blocks the caller: delivery results are collected in the background and failures are
// logged.
type PubSubAnalyticsSink struct {
	topic   *pubsub.Topic
	logger  *zap.Logger
	now     func() time.Time
	marshal func(any) ([]byte, error)

	pending sync.WaitGroup
}

// NewPubSubAnalyticsSink constructs the sink. A nil logger discards delivery failures.
func NewPubSubAnalyticsSink(topic *pubsub.Topic, logger *zap.Logger, clock func() time.Time) (*PubSubAnalyticsSink, error) {
	if topic == nil {
		return nil, errors.New("pubsub analytics sink: topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &PubSubAnalyticsSink{
		topic:   topic,
		logger:  logger,
		now:     func() time.Time { return clock().UTC() },
		marshal: json.Marshal,
	}, nil
}

func (s *PubSubAnalyticsSink) CartCreated(ctx context.Context, cart services.Cart) {
	s.publish(ctx, s.cartMessage(AnalyticsCartCreated, cart))
}

func (s *PubSubAnalyticsSink) CartUpdated(ctx context.Context, cart services.Cart) {
	s.publish(ctx, s.cartMessage(AnalyticsCartUpdated, cart))
}

func (s *PubSubAnalyticsSink) CartDeleted(ctx context.Context, cartID string) {
	s.publish(ctx, AnalyticsMessage{Event: AnalyticsCartDeleted, CartID: cartID, OccurredAt: s.now()})
}

func (s *PubSubAnalyticsSink) ActiveCartChanged(ctx context.Context, scope services.CartScope, cartID *string) {
	s.publish(ctx, AnalyticsMessage{
		Event:        AnalyticsActiveChanged,
		StoreID:      scope.StoreID,
		ProfileID:    scope.Profile.Ptr(),
		SessionID:    scope.Session.Ptr(),
		ActiveCartID: cartID,
		OccurredAt:   s.now(),
	})
}

func (s *PubSubAnalyticsSink) ItemAdded(ctx context.Context, cart services.Cart, item services.CartItem) {
	s.publish(ctx, s.itemMessage(AnalyticsItemAdded, cart, item))
}

func (s *PubSubAnalyticsSink) ItemUpdated(ctx context.Context, cart services.Cart, item services.CartItem) {
	s.publish(ctx, s.itemMessage(AnalyticsItemUpdated, cart, item))
}

func (s *PubSubAnalyticsSink) ItemRemoved(ctx context.Context, cart services.Cart, item services.CartItem) {
	s.publish(ctx, s.itemMessage(AnalyticsItemRemoved, cart, item))
}

// Flush blocks until every queued message has been sent and its result observed. Callers must stop
// publishing before calling Flush; messages published concurrently with it may be missed.
func (s *PubSubAnalyticsSink) Flush() {
	s.topic.Flush()
	s.pending.Wait()
}

func (s *PubSubAnalyticsSink) cartMessage(event string, cart services.Cart) AnalyticsMessage {
	return AnalyticsMessage{
		Event:      event,
		CartID:     cart.ID,
		StoreID:    cart.StoreID,
		ProfileID:  cart.ProfileID,
		SessionID:  cart.SessionID,
		Status:     string(cart.Status),
		ItemCount:  cart.ItemCount(),
		OccurredAt: s.now(),
	}
}

func (s *PubSubAnalyticsSink) itemMessage(event string, cart services.Cart, item services.CartItem) AnalyticsMessage {
	msg := s.cartMessage(event, cart)
	msg.ItemID = item.ID
	msg.ProductID = item.ProductID
	msg.Quantity = item.Quantity
	return msg
}

func (s *PubSubAnalyticsSink) publish(ctx context.Context, msg AnalyticsMessage) {
	data, err := s.marshal(msg)
	if err != nil {
		s.logger.Warn("analytics: marshal message", zap.String("event", msg.Event), zap.Error(err))
		return
	}
	attrs := make(map[string]string)
	setAttr(attrs, "event", msg.Event)
	setAttr(attrs, "cartId", msg.CartID)
	setAttr(attrs, "storeId", msg.StoreID)

	// The orchestrator calls in while holding its lock; the publish context must outlive the call.
	s.pending.Add(1)
	result := s.topic.Publish(context.WithoutCancel(ctx), &pubsub.Message{Data: data, Attributes: attrs})
	go func() {
		defer s.pending.Done()
		if _, err := result.Get(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("analytics: publish failed", zap.String("event", msg.Event), zap.Error(fmt.Errorf("publish analytics: %w", err)))
		}
	}()
}

var _ services.AnalyticsSink = (*PubSubAnalyticsSink)(nil)
