package service

import (
	"context"
	"encoding/json"

	"plant-diagnostics-web/internal/pkg/logger"
	"plant-diagnostics-web/internal/websocket"
	"plant-diagnostics-web/pkg/feed"
	"plant-diagnostics-web/pkg/predict"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Websocket envelope types the browser client switches on.
const (
	WSTypePrediction = "prediction"
	WSTypeStatus     = "status"
	WSTypeError      = "error"
	WSTypeFeed       = "feed"
)

type IRelayService interface {
	Consume(ctx context.Context) error
}

// relayService drains the in-process bus and fans messages out: per-user
// traffic to that user's open sockets, broadcast traffic to everyone plus
// the live feed store.
type relayService struct {
	pubSub *gochannel.GoChannel
	hub    *websocket.Hub
	feed   *feed.Store
	logger logger.ILogger
}

func NewRelayService(pubSub *gochannel.GoChannel, hub *websocket.Hub, feedStore *feed.Store, log logger.ILogger) IRelayService {
	return &relayService{pubSub: pubSub, hub: hub, feed: feedStore, logger: log}
}

func (rs *relayService) Consume(ctx context.Context) error {
	if err := rs.consumeTopic(ctx, TopicResults, rs.handleResult); err != nil {
		return err
	}
	if err := rs.consumeTopic(ctx, TopicStatus, rs.handleStatus); err != nil {
		return err
	}
	if err := rs.consumeTopic(ctx, TopicErrors, rs.handleError); err != nil {
		return err
	}
	return rs.consumeTopic(ctx, TopicFeed, rs.handleFeed)
}

func (rs *relayService) consumeTopic(ctx context.Context, topic string, handle func(*message.Message)) error {
	messages, err := rs.pubSub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	go func() {
		for msg := range messages {
			handle(msg)
			msg.Ack()
		}
	}()
	return nil
}

func (rs *relayService) handleResult(msg *message.Message) {
	var env predict.ResultEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		rs.logger.Error("Relay", "Failed to unmarshal result", map[string]interface{}{"error": err.Error()})
		return
	}
	rs.hub.Send(env.UserID, WSTypePrediction, env)
}

func (rs *relayService) handleStatus(msg *message.Message) {
	var update predict.StatusUpdate
	if err := json.Unmarshal(msg.Payload, &update); err != nil {
		rs.logger.Error("Relay", "Failed to unmarshal status", map[string]interface{}{"error": err.Error()})
		return
	}
	rs.hub.Send(update.UserID, WSTypeStatus, update)
}

func (rs *relayService) handleError(msg *message.Message) {
	var errMsg predict.ErrorMessage
	if err := json.Unmarshal(msg.Payload, &errMsg); err != nil {
		rs.logger.Error("Relay", "Failed to unmarshal error message", map[string]interface{}{"error": err.Error()})
		return
	}
	rs.hub.Send(errMsg.UserID, WSTypeError, errMsg)
}

func (rs *relayService) handleFeed(msg *message.Message) {
	var entry predict.FeedEntry
	if err := json.Unmarshal(msg.Payload, &entry); err != nil {
		rs.logger.Error("Relay", "Failed to unmarshal feed entry", map[string]interface{}{"error": err.Error()})
		return
	}
	rs.feed.Add(entry)
	rs.hub.Broadcast(WSTypeFeed, entry)
}
