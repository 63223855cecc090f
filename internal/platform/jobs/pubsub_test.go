package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/hanko-field/carts/internal/domain"
	"github.com/hanko-field/carts/internal/platform/events"
)

func newTestTopic(t *testing.T, name string) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, name)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	t.Cleanup(topic.Stop)
	return srv, topic
}

func TestPubSubAnalyticsSinkPublishesItemEvents(t *testing.T) {
	srv, topic := newTestTopic(t, "cart-analytics")
	now := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	sink, err := NewPubSubAnalyticsSink(topic, nil, func() time.Time { return now })
	if err != nil {
		t.Fatalf("NewPubSubAnalyticsSink: %v", err)
	}

	profile := "user-1"
	cart := domain.Cart{ID: "cart-1", StoreID: "store-1", ProfileID: &profile, Status: domain.CartStatusActive,
		Items: []domain.CartItem{{ID: "line-1", ProductID: "stamp", Quantity: 3}}}
	sink.ItemAdded(context.Background(), cart, cart.Items[0])
	sink.Flush()

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload AnalyticsMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Event != AnalyticsItemAdded || payload.ItemID != "line-1" || payload.Quantity != 3 || payload.ItemCount != 3 {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if payload.ProfileID == nil || *payload.ProfileID != "user-1" || !payload.OccurredAt.Equal(now) {
		t.Fatalf("unexpected payload owner/time %#v", payload)
	}
	if attrs := messages[0].Attributes; attrs["event"] != AnalyticsItemAdded || attrs["cartId"] != "cart-1" || attrs["storeId"] != "store-1" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
}

func TestPubSubAnalyticsSinkPublishesActiveChange(t *testing.T) {
	srv, topic := newTestTopic(t, "cart-analytics")
	sink, err := NewPubSubAnalyticsSink(topic, nil, nil)
	if err != nil {
		t.Fatalf("NewPubSubAnalyticsSink: %v", err)
	}

	sink.ActiveCartChanged(context.Background(), domain.NewCartScope("store-1", nil, nil), nil)
	sink.CartDeleted(context.Background(), "cart-9")
	sink.Flush()

	messages := srv.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	events := map[string]AnalyticsMessage{}
	for _, msg := range messages {
		var payload AnalyticsMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		events[payload.Event] = payload
	}
	if change := events[AnalyticsActiveChanged]; change.StoreID != "store-1" || change.ActiveCartID != nil || change.ProfileID != nil {
		t.Fatalf("unexpected active change %#v", change)
	}
	if deleted := events[AnalyticsCartDeleted]; deleted.CartID != "cart-9" {
		t.Fatalf("unexpected deletion %#v", deleted)
	}
}

func TestPubSubAnalyticsSinkFlushWaitsForConcurrentPublishers(t *testing.T) {
	srv, topic := newTestTopic(t, "cart-analytics")
	sink, err := NewPubSubAnalyticsSink(topic, nil, nil)
	if err != nil {
		t.Fatalf("NewPubSubAnalyticsSink: %v", err)
	}

	const publishers = 8
	var wg sync.WaitGroup
	for i := range publishers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.CartDeleted(context.Background(), fmt.Sprintf("cart-%d", i))
		}()
	}
	wg.Wait()
	sink.Flush()

	seen := map[string]bool{}
	for _, msg := range srv.Messages() {
		seen[msg.Attributes["cartId"]] = true
	}
	if len(seen) != publishers {
		t.Fatalf("expected %d delivered messages after flush, got %v", publishers, seen)
	}
}

func TestEventRelayForwardsEventsInOrder(t *testing.T) {
	srv, topic := newTestTopic(t, "cart-events")
	relay, err := NewEventRelay(topic, nil)
	if err != nil {
		t.Fatalf("NewEventRelay: %v", err)
	}

	broadcaster := events.NewBroadcaster[domain.CartEvent]()
	sub := broadcaster.Subscribe()
	scope := domain.NewCartScope("store-1", nil, nil)
	active := "cart-1"
	cart := domain.Cart{ID: "cart-1", StoreID: "store-1", Status: domain.CartStatusActive}
	broadcaster.Publish(domain.CartEvent{Kind: domain.CartEventCreated, CartID: "cart-1", Cart: &cart, Scope: scope})
	broadcaster.Publish(domain.CartEvent{Kind: domain.CartEventActiveChanged, Scope: scope, ActiveCartID: &active})
	broadcaster.Close()

	if err := relay.Run(context.Background(), sub); err != nil {
		t.Fatalf("Run: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	var kinds []string
	for _, msg := range messages {
		if msg.OrderingKey != scope.Key() {
			t.Fatalf("expected ordering key %q, got %q", scope.Key(), msg.OrderingKey)
		}
		var payload EventMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		kinds = append(kinds, payload.Kind)
	}
	if kinds[0] != string(domain.CartEventCreated) || kinds[1] != string(domain.CartEventActiveChanged) {
		t.Fatalf("unexpected order %v", kinds)
	}
}

func TestEventRelayStopsOnContextCancel(t *testing.T) {
	_, topic := newTestTopic(t, "cart-events")
	relay, err := NewEventRelay(topic, nil)
	if err != nil {
		t.Fatalf("NewEventRelay: %v", err)
	}
	broadcaster := events.NewBroadcaster[domain.CartEvent]()
	defer broadcaster.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := relay.Run(ctx, broadcaster.Subscribe()); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if broadcaster.SubscriberCount() != 0 {
		t.Fatalf("expected relay to close its subscription")
	}
}
