package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"plant-diagnostics-web/internal/pkg/logger"
	"plant-diagnostics-web/pkg/identity"
	"plant-diagnostics-web/pkg/predict"
	"plant-diagnostics-web/pkg/transport"
)

// State of one diagnosis attempt.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingUpload   State = "awaiting_upload"
	StateSubmitting       State = "submitting"
	StateWaitingForResult State = "waiting_for_result"
	StateResultShown      State = "result_shown"
	StateFeedbackInFlight State = "feedback_in_flight"
	StateFeedbackResolved State = "feedback_resolved"
)

var (
	// ErrInvalidTransition rejects an operation the current state does not allow.
	ErrInvalidTransition = errors.New("session: invalid state transition")
)

// Listener observes the session. Rendering is the host's job; the session
// only reports state and data. All callbacks are optional. Callbacks run
// after the internal lock is released, so a listener may call back into the
// session (View, State, Reset) freely.
type Listener struct {
	OnStateChange func(from, to State)
	OnStatus      func(update predict.StatusUpdate)
	OnError       func(message string)
}

// Session orchestrates one diagnosis attempt: image capture, submission,
// waiting, result, optional feedback. One live session per host; a new
// upload discards prior session data unconditionally.
type Session struct {
	resolver  *identity.Resolver
	transport transport.Transport
	listener  Listener
	logger    logger.ILogger

	mu          sync.Mutex
	state       State
	mode        predict.Mode
	image       string
	description string
	result      *predict.PredictionResult
	correlation string

	// generation invalidates in-flight work when the user abandons the
	// session mid-submission.
	generation uint64
}

func New(resolver *identity.Resolver, t transport.Transport, listener Listener, log logger.ILogger) *Session {
	return &Session{
		resolver:  resolver,
		transport: t,
		listener:  listener,
		logger:    log,
		state:     StateIdle,
	}
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SelectMode begins a new attempt. Only valid from Idle; use Reset first
// when a prior attempt is still on screen.
func (s *Session) SelectMode(mode predict.Mode) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("%w: select mode from %s", ErrInvalidTransition, s.state)
	}
	s.mode = mode
	notify := s.transitionLocked(StateAwaitingUpload)
	s.mu.Unlock()
	invoke(notify)
	return nil
}

// Submit sends the uploaded image for analysis. On the synchronous path the
// call blocks until the backend replies and the session lands in ResultShown.
// On the asynchronous path it returns once the request is accepted and the
// session waits for the channel to deliver the result. Any transport
// rejection discards the image and returns the session to Idle.
func (s *Session) Submit(ctx context.Context, imageBase64, description string) error {
	s.mu.Lock()
	if s.state != StateAwaitingUpload {
		s.mu.Unlock()
		return fmt.Errorf("%w: submit from %s", ErrInvalidTransition, s.state)
	}
	s.image = imageBase64
	s.description = description
	notify := s.transitionLocked(StateSubmitting)
	gen := s.generation
	req := predict.NewDiagnosisRequest(imageBase64, s.mode, s.resolver.Resolve().UserID, description)
	s.mu.Unlock()
	invoke(notify)

	sub, err := s.transport.Submit(ctx, req)

	s.mu.Lock()
	if s.generation != gen {
		// User abandoned the attempt while the call was in flight.
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.logger.Warn("Session", "Submission rejected", map[string]interface{}{"error": err.Error()})
		notifyReset := s.resetLocked()
		notifyErr := s.errorLocked(userMessage(err))
		s.mu.Unlock()
		invoke(notifyReset, notifyErr)
		return err
	}
	if sub.Async() {
		s.correlation = sub.CorrelationToken
		notify = s.transitionLocked(StateWaitingForResult)
		s.mu.Unlock()
		invoke(notify)
		return nil
	}
	s.result = sub.Result
	notify = s.transitionLocked(StateResultShown)
	s.mu.Unlock()
	invoke(notify)
	return nil
}

// HandleResult delivers an asynchronous prediction result. Results for an
// abandoned or mismatched request are ignored; they never move the session
// out of a state that is not expecting them.
func (s *Session) HandleResult(env predict.ResultEnvelope) {
	s.mu.Lock()
	if s.state != StateWaitingForResult {
		s.mu.Unlock()
		return
	}
	if env.CorrelationToken != "" && env.CorrelationToken != s.correlation {
		s.mu.Unlock()
		s.logger.Warn("Session", "Result for stale correlation token ignored", map[string]interface{}{
			"token": env.CorrelationToken,
		})
		return
	}
	s.result = env.Result
	notify := s.transitionLocked(StateResultShown)
	s.mu.Unlock()
	invoke(notify)
}

// HandleStatus forwards a progress update. Status never changes state; the
// decision to forward is made in the same critical section that reads the
// state, so a status racing a Reset is dropped, not surfaced late.
func (s *Session) HandleStatus(update predict.StatusUpdate) {
	s.mu.Lock()
	var notify func()
	if (s.state == StateWaitingForResult || s.state == StateSubmitting) && s.listener.OnStatus != nil {
		f := s.listener.OnStatus
		notify = func() { f(update) }
	}
	s.mu.Unlock()
	invoke(notify)
}

// HandleError delivers an asynchronous failure. Only a session actively
// waiting for a result is affected; it returns to Idle with the image
// discarded.
func (s *Session) HandleError(msg predict.ErrorMessage) {
	s.mu.Lock()
	if s.state != StateWaitingForResult {
		s.mu.Unlock()
		return
	}
	if msg.CorrelationToken != "" && msg.CorrelationToken != s.correlation {
		s.mu.Unlock()
		return
	}
	notifyReset := s.resetLocked()
	notifyErr := s.errorLocked(msg.Message)
	s.mu.Unlock()
	invoke(notifyReset, notifyErr)
}

// BeginFeedback marks the on-screen result as having a judgment in flight.
func (s *Session) BeginFeedback() error {
	s.mu.Lock()
	if s.state != StateResultShown {
		s.mu.Unlock()
		return fmt.Errorf("%w: feedback from %s", ErrInvalidTransition, s.state)
	}
	notify := s.transitionLocked(StateFeedbackInFlight)
	s.mu.Unlock()
	invoke(notify)
	return nil
}

// ResolveFeedback records the judgment outcome. Failure restores
// ResultShown so the user can retry; the prediction result is untouched.
func (s *Session) ResolveFeedback(succeeded bool) {
	s.mu.Lock()
	if s.state != StateFeedbackInFlight {
		s.mu.Unlock()
		return
	}
	var notify func()
	if succeeded {
		notify = s.transitionLocked(StateFeedbackResolved)
	} else {
		notify = s.transitionLocked(StateResultShown)
	}
	s.mu.Unlock()
	invoke(notify)
}

// Reset returns to Idle from any state, unconditionally discarding image,
// mode, result and any in-flight correlation.
func (s *Session) Reset() {
	s.mu.Lock()
	notify := s.resetLocked()
	s.mu.Unlock()
	invoke(notify)
}

func (s *Session) resetLocked() func() {
	s.generation++
	s.mode = ""
	s.image = ""
	s.description = ""
	s.result = nil
	s.correlation = ""
	return s.transitionLocked(StateIdle)
}

// transitionLocked records the state change and returns the deferred
// OnStateChange call. Callers invoke it after releasing the mutex so
// listeners can re-enter the session.
func (s *Session) transitionLocked(to State) func() {
	from := s.state
	if from == to {
		return nil
	}
	s.state = to
	if s.listener.OnStateChange == nil {
		return nil
	}
	f := s.listener.OnStateChange
	return func() { f(from, to) }
}

func (s *Session) errorLocked(message string) func() {
	if s.listener.OnError == nil {
		return nil
	}
	f := s.listener.OnError
	return func() { f(message) }
}

func invoke(notifications ...func()) {
	for _, f := range notifications {
		if f != nil {
			f()
		}
	}
}

func userMessage(err error) string {
	var rejected *transport.RequestRejectedError
	if errors.As(err, &rejected) && rejected.Message != "" {
		return rejected.Message
	}
	if errors.Is(err, transport.ErrTransportUnavailable) {
		return "Analysis service is not available right now. Please try again."
	}
	return "Analysis failed. Please try again."
}
