package service

import (
	"encoding/json"

	"plant-diagnostics-web/internal/pkg/logger"
	"plant-diagnostics-web/pkg/predict"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// In-process topics carrying traffic from the pub/sub channel to the
// gateway's fan-out side.
const (
	TopicResults = "prediction.results"
	TopicStatus  = "prediction.status"
	TopicErrors  = "prediction.errors"
	TopicFeed    = "prediction.feed"
)

// IBridgePublisher pushes decoded channel messages onto the in-process bus.
// The reconnecting channel's handlers are bound to these methods, so a slow
// websocket consumer never blocks a bus subscription.
type IBridgePublisher interface {
	PublishResult(env predict.ResultEnvelope)
	PublishStatus(update predict.StatusUpdate)
	PublishError(msg predict.ErrorMessage)
	PublishFeed(entry predict.FeedEntry)
}

type bridgePublisher struct {
	pubSub *gochannel.GoChannel
	logger logger.ILogger
}

func NewBridgePublisher(pubSub *gochannel.GoChannel, log logger.ILogger) IBridgePublisher {
	return &bridgePublisher{pubSub: pubSub, logger: log}
}

func (p *bridgePublisher) PublishResult(env predict.ResultEnvelope) {
	p.publish(TopicResults, env)
}

func (p *bridgePublisher) PublishStatus(update predict.StatusUpdate) {
	p.publish(TopicStatus, update)
}

func (p *bridgePublisher) PublishError(msg predict.ErrorMessage) {
	p.publish(TopicErrors, msg)
}

func (p *bridgePublisher) PublishFeed(entry predict.FeedEntry) {
	p.publish(TopicFeed, entry)
}

func (p *bridgePublisher) publish(topic string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("BridgePublisher", "Failed to marshal payload", map[string]interface{}{
			"topic": topic, "error": err.Error(),
		})
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := p.pubSub.Publish(topic, msg); err != nil {
		p.logger.Error("BridgePublisher", "Failed to publish", map[string]interface{}{
			"topic": topic, "error": err.Error(),
		})
	}
}
