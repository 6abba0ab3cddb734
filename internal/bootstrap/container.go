package bootstrap

import (
	"plant-diagnostics-web/internal/config"
	"plant-diagnostics-web/internal/controller"
	"plant-diagnostics-web/internal/handler"
	"plant-diagnostics-web/internal/pkg/logger"
	"plant-diagnostics-web/internal/service"
	"plant-diagnostics-web/internal/websocket"
	"plant-diagnostics-web/pkg/channel"
	"plant-diagnostics-web/pkg/feed"
	pktNats "plant-diagnostics-web/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type Container struct {
	// Controllers
	PredictionController controller.IPredictionController

	// WebSockets & Channel bridge
	ChannelHandler *handler.ChannelHandler
	WebSocketHub   *websocket.Hub

	// Background Services (Exposed for main.go to run)
	Channel      *channel.Channel
	RelayService service.IRelayService
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	channelLogger := logger.NewIsolatedLogger(cfg.App.ChannelLogFilePath)

	// 2. In-process Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. WebSocket Hub
	wsHub := websocket.NewHub(channelLogger)
	go wsHub.Run()

	// 4. Live Feed Store
	feedStore := feed.NewStore(cfg.Channel.FeedTTL)

	// 5. Reconnecting Channel
	// The gateway relays for every user, so it subscribes the wildcard
	// scope and the relay routes each message by its embedded user id.
	bridgePub := service.NewBridgePublisher(pubSub, channelLogger)
	ch := channel.New(
		pktNats.NewDialer(cfg.Channel.NatsURL),
		channel.WildcardScope,
		channel.RetryPolicy{Delay: cfg.Channel.RetryDelay, MaxAttempts: cfg.Channel.MaxRetryAttempts},
		cfg.Channel.HeartbeatInterval,
		channel.Handlers{
			OnResult: bridgePub.PublishResult,
			OnStatus: bridgePub.PublishStatus,
			OnError:  bridgePub.PublishError,
			OnFeed:   bridgePub.PublishFeed,
		},
		channelLogger,
	)

	// 6. Services
	relayService := service.NewRelayService(pubSub, wsHub, feedStore, channelLogger)
	proxyService := service.NewProxyService(cfg.Upstream.BaseURL, sysLogger)

	// 7. Handlers & Controllers
	channelHandler := handler.NewChannelHandler(wsHub, channelLogger)

	return &Container{
		PredictionController: controller.NewPredictionController(proxyService, feedStore),
		ChannelHandler:       channelHandler,
		WebSocketHub:         wsHub,
		Channel:              ch,
		RelayService:         relayService,
	}
}
