package feedback

import (
	"context"
	"errors"
	"sync"
	"time"

	"plant-diagnostics-web/internal/pkg/logger"
	"plant-diagnostics-web/pkg/identity"
	"plant-diagnostics-web/pkg/predict"
	"plant-diagnostics-web/pkg/session"
)

var (
	// ErrNotAuthenticated rejects feedback from users the backend cannot
	// durably associate with an account.
	ErrNotAuthenticated = errors.New("feedback: user not authenticated")

	// ErrNoPrediction rejects feedback on a prediction the backend never
	// persisted (prediction id 0). The affordance should not be shown.
	ErrNoPrediction = errors.New("feedback: no persisted prediction to rate")

	// ErrInFlight rejects a second judgment while one is pending.
	ErrInFlight = errors.New("feedback: submission already in flight")
)

// Submitter delivers a judgment to the backend.
type Submitter interface {
	SubmitFeedback(ctx context.Context, judgment *predict.FeedbackJudgment) error
}

// UIHooks let the host apply the optimistic presentation: controls are
// disabled before the network call resolves, restored only on failure.
// All hooks are optional.
type UIHooks struct {
	DisableControls  func()
	EnableControls   func()
	ShowPending      func()
	ShowSuccess      func()
	ShowError        func(message string)
	RemoveAffordance func()
}

// Coordinator submits correctness judgments with optimistic UI and rollback.
// No queue, no automatic retry: a failed attempt is terminal until the user
// triggers it again.
type Coordinator struct {
	resolver  *identity.Resolver
	submitter Submitter
	session   *session.Session
	hooks     UIHooks
	logger    logger.ILogger

	// removeAfter delays removing the affordance after success.
	removeAfter time.Duration

	// schedule is swapped in tests to control the removal timer.
	schedule func(d time.Duration, f func())

	mu       sync.Mutex
	inFlight map[int]bool
}

func NewCoordinator(resolver *identity.Resolver, submitter Submitter, sess *session.Session, hooks UIHooks, log logger.ILogger) *Coordinator {
	return &Coordinator{
		resolver:    resolver,
		submitter:   submitter,
		session:     sess,
		hooks:       hooks,
		logger:      log,
		removeAfter: 2 * time.Second,
		schedule:    func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		inFlight:    make(map[int]bool),
	}
}

// Submit sends one judgment. Controls are disabled and the pending
// indicator shown before the call; on failure everything is restored for
// exactly one manual retry path (calling Submit again).
func (c *Coordinator) Submit(ctx context.Context, predictionID int, isCorrect bool, predictedClass string) error {
	if predictionID <= 0 {
		return ErrNoPrediction
	}
	if !c.resolver.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	c.mu.Lock()
	if c.inFlight[predictionID] {
		c.mu.Unlock()
		return ErrInFlight
	}
	c.inFlight[predictionID] = true
	c.mu.Unlock()

	c.call(c.hooks.DisableControls)
	c.call(c.hooks.ShowPending)
	if c.session != nil {
		if err := c.session.BeginFeedback(); err != nil {
			c.logger.Warn("Feedback", "Session not showing a result", map[string]interface{}{"error": err.Error()})
		}
	}

	judgment := &predict.FeedbackJudgment{
		PredictionID:   predictionID,
		UserID:         c.resolver.Resolve().UserID,
		IsCorrect:      isCorrect,
		PredictedClass: predictedClass,
		FeedbackText:   feedbackText(isCorrect),
	}

	err := c.submitter.SubmitFeedback(ctx, judgment)

	c.mu.Lock()
	delete(c.inFlight, predictionID)
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("Feedback", "Submission failed", map[string]interface{}{
			"prediction_id": predictionID, "error": err.Error(),
		})
		c.call(c.hooks.EnableControls)
		if c.hooks.ShowError != nil {
			c.hooks.ShowError("Failed to submit feedback. Please try again.")
		}
		if c.session != nil {
			c.session.ResolveFeedback(false)
		}
		return err
	}

	c.call(c.hooks.ShowSuccess)
	if c.hooks.RemoveAffordance != nil {
		c.schedule(c.removeAfter, c.hooks.RemoveAffordance)
	}
	if c.session != nil {
		c.session.ResolveFeedback(true)
	}
	return nil
}

func (c *Coordinator) call(hook func()) {
	if hook != nil {
		hook()
	}
}

func feedbackText(isCorrect bool) string {
	if isCorrect {
		return "Prediction is correct"
	}
	return "Prediction is incorrect"
}
