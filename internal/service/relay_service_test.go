package service

import (
	"context"
	"testing"
	"time"

	"plant-diagnostics-web/internal/pkg/logger"
	"plant-diagnostics-web/internal/websocket"
	"plant-diagnostics-web/pkg/feed"
	"plant-diagnostics-web/pkg/predict"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
}

func TestFeedEntriesReachTheStore(t *testing.T) {
	bus := newBus()
	defer bus.Close()

	store := feed.NewStore(time.Minute)
	hub := websocket.NewHub(logger.NewNopLogger())
	relay := NewRelayService(bus, hub, store, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, relay.Consume(ctx))

	pub := NewBridgePublisher(bus, logger.NewNopLogger())
	pub.PublishFeed(predict.FeedEntry{
		PlantName:      "Tomato",
		PredictedClass: "Tomato___healthy",
		Confidence:     0.88,
	})

	require.Eventually(t, func() bool {
		return len(store.Recent(0)) == 1
	}, 2*time.Second, 10*time.Millisecond, "feed entry never drained from the bus")

	got := store.Recent(0)[0]
	assert.Equal(t, "Tomato", got.PlantName)
	assert.Equal(t, 0.88, got.Confidence)
}

func TestPerUserTrafficWithNoOpenSockets(t *testing.T) {
	bus := newBus()
	defer bus.Close()

	store := feed.NewStore(time.Minute)
	hub := websocket.NewHub(logger.NewNopLogger())
	relay := NewRelayService(bus, hub, store, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, relay.Consume(ctx))

	pub := NewBridgePublisher(bus, logger.NewNopLogger())
	pub.PublishResult(predict.ResultEnvelope{
		UserID: 9,
		Result: &predict.PredictionResult{PredictedClass: "Apple___Apple_scab"},
	})
	pub.PublishStatus(predict.StatusUpdate{UserID: 9, Status: "processing"})
	pub.PublishError(predict.ErrorMessage{UserID: 9, Message: "model crashed"})

	// Per-user traffic for a user with no open tabs is dropped silently;
	// only broadcasts touch the feed store.
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, store.Recent(0))
}
