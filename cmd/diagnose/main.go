package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"plant-diagnostics-web/internal/config"
	"plant-diagnostics-web/internal/pkg/logger"
	"plant-diagnostics-web/pkg/channel"
	"plant-diagnostics-web/pkg/feedback"
	"plant-diagnostics-web/pkg/identity"
	pktNats "plant-diagnostics-web/pkg/nats"
	"plant-diagnostics-web/pkg/predict"
	"plant-diagnostics-web/pkg/session"
	"plant-diagnostics-web/pkg/transport"

	"github.com/fatih/color"
)

// Terminal client for the prediction pipeline. Without -image it watches
// the channel and prints everything that flows through it; with -image it
// runs a full diagnosis: resolve identity, submit, wait for the result,
// optionally rate it.
func main() {
	userID := flag.Int("user", predict.GuestUserID, "user id to act as (seeds the session store)")
	imagePath := flag.String("image", "", "image file to diagnose; omit to watch the channel")
	modeFlag := flag.String("mode", "identify", "identify or disease")
	describe := flag.String("describe", "", "optional symptom description")
	syncMode := flag.Bool("sync", false, "submit over HTTP instead of the channel")
	rate := flag.String("rate", "", "rate the result: correct or incorrect")
	flag.Parse()

	cfg := config.Load()
	log := logger.NewIsolatedLogger(cfg.App.ChannelLogFilePath)

	// The same three stores the browser client resolves from: a cookie
	// (when the backend issued one), the per-run session store, and the
	// durable file store.
	sessionStore := identity.NewSessionSource()
	if *userID > 0 {
		sessionStore.Set(*userID)
	}
	resolver := identity.NewResolver(
		identity.NewCookieSource(os.Getenv("AUTH_COOKIE")),
		sessionStore,
		identity.NewLocalSource(cfg.Identity.LocalStorePath),
	)
	id := resolver.Resolve()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	if *imagePath == "" {
		watch(ctx, cfg, log, id)
		return
	}
	diagnose(ctx, cfg, log, resolver, id, *imagePath, *modeFlag, *describe, *syncMode, *rate)
}

// watch subscribes the channel for one identity and prints the traffic.
func watch(ctx context.Context, cfg *config.Config, log logger.ILogger, id identity.Identity) {
	scope := channel.WildcardScope
	if id.UserID > 0 {
		scope = strconv.Itoa(id.UserID)
	}

	handlers := channel.Handlers{
		OnStateChange: printState,
		OnResult: func(env predict.ResultEnvelope) {
			color.Cyan("[result] user=%d class=%s confidence=%.2f token=%s",
				env.UserID, env.Result.PredictedClass, env.Result.Confidence, env.CorrelationToken)
		},
		OnStatus: func(update predict.StatusUpdate) {
			color.White("[status] user=%d %s (%d%%) %s",
				update.UserID, update.Status, update.ProgressPercentage, update.Message)
		},
		OnError: func(msg predict.ErrorMessage) {
			color.Red("[error] user=%d code=%s %s", msg.UserID, msg.ErrorCode, msg.Message)
		},
		OnFeed: printFeedEntry,
	}

	ch := newChannel(cfg, scope, handlers, log)
	fmt.Printf("Watching %s (scope %s). Ctrl-C to stop.\n", cfg.Channel.NatsURL, scope)
	if err := ch.Run(ctx); err != nil && ctx.Err() == nil {
		color.Red("channel stopped: %v", err)
		os.Exit(1)
	}
}

// diagnose drives one full session: upload, result, optional feedback.
func diagnose(ctx context.Context, cfg *config.Config, log logger.ILogger, resolver *identity.Resolver,
	id identity.Identity, imagePath, modeFlag, describe string, syncMode bool, rate string) {
	mode, err := parseMode(modeFlag)
	if err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
	dataURL, err := loadImage(imagePath)
	if err != nil {
		color.Red("read image: %v", err)
		os.Exit(1)
	}
	fmt.Printf("Diagnosing %s as user %d (source %s, mode %s)\n", imagePath, id.UserID, id.Source, mode)

	settled := make(chan session.State, 1)
	listener := session.Listener{
		OnStateChange: func(from, to session.State) {
			color.New(color.Faint).Printf("[session] %s -> %s\n", from, to)
			if to == session.StateResultShown || (to == session.StateIdle && from == session.StateWaitingForResult) {
				settled <- to
			}
		},
		OnStatus: func(update predict.StatusUpdate) {
			color.White("[status] %s (%d%%) %s", update.Status, update.ProgressPercentage, update.Message)
		},
		OnError: func(message string) {
			color.Red("[error] %s", message)
		},
	}

	var sess *session.Session
	if syncMode {
		sess = session.New(resolver, transport.NewHTTPTransport(cfg.App.BaseURL), listener, log)
	} else {
		// Handlers close over sess, so the session must exist before the
		// channel starts delivering.
		ch := newChannel(cfg, strconv.Itoa(id.UserID), channel.Handlers{
			OnResult: func(env predict.ResultEnvelope) { sess.HandleResult(env) },
			OnStatus: func(update predict.StatusUpdate) { sess.HandleStatus(update) },
			OnError:  func(msg predict.ErrorMessage) { sess.HandleError(msg) },
			OnFeed:   printFeedEntry,
		}, log)
		sess = session.New(resolver, transport.NewChannelTransport(ch), listener, log)
		go func() {
			if err := ch.Run(ctx); err != nil && ctx.Err() == nil {
				color.Red("channel stopped: %v", err)
			}
		}()
		if !awaitConnected(ctx, ch) {
			color.Red("channel never connected to %s", cfg.Channel.NatsURL)
			os.Exit(1)
		}
	}

	if err := sess.SelectMode(mode); err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
	if err := sess.Submit(ctx, dataURL, describe); err != nil {
		os.Exit(1)
	}

	if sess.State() != session.StateResultShown {
		select {
		case final := <-settled:
			if final != session.StateResultShown {
				os.Exit(1)
			}
		case <-ctx.Done():
			return
		}
	}

	view := sess.View()
	printView(view)

	if rate != "" {
		rateResult(ctx, cfg, resolver, sess, view, rate, log)
	}
}

func rateResult(ctx context.Context, cfg *config.Config, resolver *identity.Resolver,
	sess *session.Session, view session.View, rate string, log logger.ILogger) {
	if !view.FeedbackAvailable {
		color.Yellow("Feedback is not available for this result (log in and ensure the prediction was persisted).")
		return
	}

	hooks := feedback.UIHooks{
		ShowPending: func() { fmt.Println("Submitting feedback...") },
		ShowSuccess: func() { color.Green("Thanks! Feedback recorded.") },
		ShowError:   func(message string) { color.Red("%s", message) },
	}
	coord := feedback.NewCoordinator(resolver, feedback.NewHTTPSubmitter(cfg.App.BaseURL), sess, hooks, log)
	_ = coord.Submit(ctx, view.Result.PredictionID, rate == "correct", view.Result.PredictedClass)
}

func printView(v session.View) {
	fmt.Println()
	color.Cyan("Plant: %s", v.PlantName)
	if v.Mode == predict.ModeDisease {
		if v.Healthy {
			color.Green("Condition: healthy")
		} else {
			color.Red("Condition: %s", v.Result.PredictedClass)
		}
	}
	fmt.Printf("Confidence: %.1f%%\n", v.Result.Confidence*100)
	if v.Result.Description != "" {
		fmt.Printf("About: %s\n", v.Result.Description)
	}
	if v.Result.RecommendedAction != "" {
		fmt.Printf("Recommended: %s\n", v.Result.RecommendedAction)
	}
	for _, alt := range v.Alternatives {
		fmt.Printf("  also possible: %s (%.1f%%)\n", alt.ClassName, alt.Probability*100)
	}
}

func printState(s channel.State) {
	switch s {
	case channel.StateConnected:
		color.Green("[state] %s", s)
	case channel.StateConnecting:
		color.Yellow("[state] %s", s)
	default:
		color.Red("[state] %s", s)
	}
}

func printFeedEntry(entry predict.FeedEntry) {
	color.Magenta("[feed] %s (%s) confidence=%.2f",
		entry.PlantName, entry.PredictedClass, entry.Confidence)
}

func newChannel(cfg *config.Config, scope string, handlers channel.Handlers, log logger.ILogger) *channel.Channel {
	return channel.New(
		pktNats.NewDialer(cfg.Channel.NatsURL),
		scope,
		channel.RetryPolicy{Delay: cfg.Channel.RetryDelay, MaxAttempts: cfg.Channel.MaxRetryAttempts},
		cfg.Channel.HeartbeatInterval,
		handlers,
		log,
	)
}

func awaitConnected(ctx context.Context, ch *channel.Channel) bool {
	deadline := time.After(15 * time.Second)
	for {
		if ch.State() == channel.StateConnected {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline:
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func parseMode(raw string) (predict.Mode, error) {
	switch raw {
	case "identify":
		return predict.ModeIdentify, nil
	case "disease":
		return predict.ModeDisease, nil
	}
	return "", fmt.Errorf("unknown mode %q (want identify or disease)", raw)
}

// loadImage reads the file and wraps it the way the browser uploads it:
// a base64 data URL with a sniffed content type.
func loadImage(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	contentType := http.DetectContentType(raw)
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(raw)), nil
}
