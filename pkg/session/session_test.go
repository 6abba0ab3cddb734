package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"plant-diagnostics-web/internal/pkg/logger"
	"plant-diagnostics-web/pkg/identity"
	"plant-diagnostics-web/pkg/predict"
	"plant-diagnostics-web/pkg/transport"
)

type fakeTransport struct {
	mu       sync.Mutex
	requests []*predict.DiagnosisRequest
	respond  func(req *predict.DiagnosisRequest) (*transport.Submission, error)

	// blocked, when set, is closed by the test to release an in-flight Submit.
	entered chan struct{}
	blocked chan struct{}
}

func (t *fakeTransport) Submit(ctx context.Context, req *predict.DiagnosisRequest) (*transport.Submission, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	t.mu.Unlock()
	if t.entered != nil {
		close(t.entered)
		t.entered = nil
	}
	if t.blocked != nil {
		<-t.blocked
	}
	return t.respond(req)
}

func syncResult(result *predict.PredictionResult) func(*predict.DiagnosisRequest) (*transport.Submission, error) {
	return func(*predict.DiagnosisRequest) (*transport.Submission, error) {
		return &transport.Submission{Result: result}, nil
	}
}

func asyncAccepted(token string) func(*predict.DiagnosisRequest) (*transport.Submission, error) {
	return func(*predict.DiagnosisRequest) (*transport.Submission, error) {
		return &transport.Submission{CorrelationToken: token}, nil
	}
}

type recorder struct {
	mu          sync.Mutex
	transitions []State
	errors      []string
	statuses    []predict.StatusUpdate
}

func (r *recorder) listener() Listener {
	return Listener{
		OnStateChange: func(_, to State) {
			r.mu.Lock()
			r.transitions = append(r.transitions, to)
			r.mu.Unlock()
		},
		OnError: func(msg string) {
			r.mu.Lock()
			r.errors = append(r.errors, msg)
			r.mu.Unlock()
		},
		OnStatus: func(u predict.StatusUpdate) {
			r.mu.Lock()
			r.statuses = append(r.statuses, u)
			r.mu.Unlock()
		},
	}
}

func guestResolver() *identity.Resolver {
	return identity.NewResolver(identity.NewCookieSource(""))
}

func authedResolver(userID string) *identity.Resolver {
	return identity.NewResolver(identity.NewCookieSource("userId=" + userID))
}

func TestSyncSubmitRoundTrip(t *testing.T) {
	result := &predict.PredictionResult{
		PredictionID:   12,
		PredictedClass: "Tomato___Late_blight",
		Confidence:     0.84,
	}
	rec := &recorder{}
	tr := &fakeTransport{respond: syncResult(result)}
	s := New(authedResolver("7"), tr, rec.listener(), logger.NewNopLogger())

	if err := s.SelectMode(predict.ModeDisease); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}
	if err := s.Submit(context.Background(), "aW1n", "wilting leaves"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	want := []State{StateAwaitingUpload, StateSubmitting, StateResultShown}
	if len(rec.transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", rec.transitions, want)
	}
	for i := range want {
		if rec.transitions[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", rec.transitions, want)
		}
	}

	if len(tr.requests) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(tr.requests))
	}
	req := tr.requests[0]
	if req.UserID != 7 || req.PredictionType != "detect-disease" || req.ImageBase64 != "aW1n" {
		t.Errorf("request mismatch: %+v", req)
	}

	v := s.View()
	if v.Result != result {
		t.Error("view should expose the exact transport result")
	}
	if v.PlantName != "Tomato" || v.Healthy {
		t.Errorf("view display fields mismatch: %+v", v)
	}
}

func TestAsyncSubmitWaitsForChannelResult(t *testing.T) {
	rec := &recorder{}
	tr := &fakeTransport{respond: asyncAccepted("tok-9")}
	s := New(guestResolver(), tr, rec.listener(), logger.NewNopLogger())

	if err := s.SelectMode(predict.ModeIdentify); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}
	if err := s.Submit(context.Background(), "aW1n", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := s.State(); got != StateWaitingForResult {
		t.Fatalf("state after async accept = %q, want %q", got, StateWaitingForResult)
	}

	// A result carrying someone else's token must not land.
	s.HandleResult(predict.ResultEnvelope{
		CorrelationToken: "tok-other",
		Result:           &predict.PredictionResult{PredictedClass: "Apple___Apple_scab"},
	})
	if got := s.State(); got != StateWaitingForResult {
		t.Fatalf("mismatched token moved state to %q", got)
	}

	s.HandleResult(predict.ResultEnvelope{
		CorrelationToken: "tok-9",
		Result: &predict.PredictionResult{
			PredictedClass: "Strawberry___healthy",
			Confidence:     0.91,
			TopPredictions: []predict.TopPrediction{
				{ClassName: "Strawberry___Leaf_scorch", Probability: 0.05},
				{ClassName: "Tomato___healthy", Probability: 0.03},
			},
		},
	})
	if got := s.State(); got != StateResultShown {
		t.Fatalf("state after result = %q, want %q", got, StateResultShown)
	}

	v := s.View()
	if v.PlantName != "Strawberry" || !v.Healthy {
		t.Errorf("view display fields mismatch: %+v", v)
	}
	if len(v.Alternatives) != 1 || v.Alternatives[0].ClassName != "Tomato___healthy" {
		t.Errorf("identify mode alternatives = %+v, want only Tomato___healthy", v.Alternatives)
	}
}

func TestLateResultForAbandonedSessionIgnored(t *testing.T) {
	rec := &recorder{}
	tr := &fakeTransport{respond: asyncAccepted("tok-1")}
	s := New(guestResolver(), tr, rec.listener(), logger.NewNopLogger())

	if err := s.SelectMode(predict.ModeIdentify); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}
	if err := s.Submit(context.Background(), "aW1n", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s.Reset()
	if got := s.State(); got != StateIdle {
		t.Fatalf("state after reset = %q, want idle", got)
	}

	s.HandleResult(predict.ResultEnvelope{
		CorrelationToken: "tok-1",
		Result:           &predict.PredictionResult{PredictedClass: "Tomato___healthy"},
	})
	if got := s.State(); got != StateIdle {
		t.Fatalf("late result moved abandoned session to %q", got)
	}
	if v := s.View(); v.Result != nil {
		t.Error("abandoned session must not retain a late result")
	}
}

func TestResetDuringInFlightSubmitDiscardsOutcome(t *testing.T) {
	rec := &recorder{}
	tr := &fakeTransport{
		respond: syncResult(&predict.PredictionResult{PredictedClass: "Tomato___healthy"}),
		entered: make(chan struct{}),
		blocked: make(chan struct{}),
	}
	entered, release := tr.entered, tr.blocked
	s := New(guestResolver(), tr, rec.listener(), logger.NewNopLogger())

	if err := s.SelectMode(predict.ModeDisease); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), "aW1n", "") }()

	<-entered
	s.Reset()
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("Submit after abandonment: %v", err)
	}
	if got := s.State(); got != StateIdle {
		t.Fatalf("state = %q, want idle after abandoned submit", got)
	}
	if v := s.View(); v.Result != nil {
		t.Error("abandoned submit must not surface its result")
	}
}

func TestSubmitRejectionResetsAndReportsServerMessage(t *testing.T) {
	rec := &recorder{}
	tr := &fakeTransport{respond: func(*predict.DiagnosisRequest) (*transport.Submission, error) {
		return nil, &transport.RequestRejectedError{StatusCode: 422, Message: "Image too small"}
	}}
	s := New(guestResolver(), tr, rec.listener(), logger.NewNopLogger())

	if err := s.SelectMode(predict.ModeIdentify); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}
	err := s.Submit(context.Background(), "aW1n", "")
	var rejected *transport.RequestRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("Submit returned %v, want RequestRejectedError", err)
	}

	if got := s.State(); got != StateIdle {
		t.Fatalf("state after rejection = %q, want idle", got)
	}
	if len(rec.errors) != 1 || rec.errors[0] != "Image too small" {
		t.Errorf("reported errors = %v, want the server's wording", rec.errors)
	}
}

func TestTransportUnavailableMessage(t *testing.T) {
	rec := &recorder{}
	tr := &fakeTransport{respond: func(*predict.DiagnosisRequest) (*transport.Submission, error) {
		return nil, transport.ErrTransportUnavailable
	}}
	s := New(guestResolver(), tr, rec.listener(), logger.NewNopLogger())

	if err := s.SelectMode(predict.ModeIdentify); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}
	if err := s.Submit(context.Background(), "aW1n", ""); err == nil {
		t.Fatal("expected an error from an unavailable transport")
	}
	if len(rec.errors) != 1 || rec.errors[0] != "Analysis service is not available right now. Please try again." {
		t.Errorf("reported errors = %v", rec.errors)
	}
}

func TestChannelErrorOnlyAffectsWaitingSession(t *testing.T) {
	rec := &recorder{}
	tr := &fakeTransport{respond: asyncAccepted("tok-1")}
	s := New(guestResolver(), tr, rec.listener(), logger.NewNopLogger())

	// Idle session ignores stray errors.
	s.HandleError(predict.ErrorMessage{Message: "model crashed"})
	if got := s.State(); got != StateIdle {
		t.Fatalf("stray error moved idle session to %q", got)
	}

	if err := s.SelectMode(predict.ModeIdentify); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}
	if err := s.Submit(context.Background(), "aW1n", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s.HandleError(predict.ErrorMessage{CorrelationToken: "tok-1", Message: "model crashed"})
	if got := s.State(); got != StateIdle {
		t.Fatalf("state after channel error = %q, want idle", got)
	}
	if len(rec.errors) != 1 || rec.errors[0] != "model crashed" {
		t.Errorf("reported errors = %v", rec.errors)
	}
}

func TestStatusNeverChangesState(t *testing.T) {
	rec := &recorder{}
	tr := &fakeTransport{respond: asyncAccepted("tok-1")}
	s := New(guestResolver(), tr, rec.listener(), logger.NewNopLogger())

	if err := s.SelectMode(predict.ModeIdentify); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}
	if err := s.Submit(context.Background(), "aW1n", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s.HandleStatus(predict.StatusUpdate{Status: "processing"})
	if got := s.State(); got != StateWaitingForResult {
		t.Fatalf("status update moved state to %q", got)
	}
	if len(rec.statuses) != 1 || rec.statuses[0].Status != "processing" {
		t.Errorf("statuses = %v", rec.statuses)
	}
}

func TestListenerReentersSessionOnResultShown(t *testing.T) {
	result := &predict.PredictionResult{
		PredictionID:   4,
		PredictedClass: "Strawberry___healthy",
		Confidence:     0.9,
	}
	tr := &fakeTransport{respond: syncResult(result)}

	var s *Session
	viewed := make(chan View, 1)
	listener := Listener{
		OnStateChange: func(_, to State) {
			// A host reads the snapshot the moment the result lands.
			if to == StateResultShown {
				viewed <- s.View()
			}
		},
	}
	s = New(authedResolver("7"), tr, listener, logger.NewNopLogger())

	if err := s.SelectMode(predict.ModeIdentify); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), "aW1n", "") }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked; listener re-entering the session must not deadlock")
	}

	v := <-viewed
	if v.State != StateResultShown || v.PlantName != "Strawberry" {
		t.Errorf("view read from the listener = %+v", v)
	}
}

func TestListenerResetsSessionOnError(t *testing.T) {
	tr := &fakeTransport{respond: asyncAccepted("tok-1")}

	var s *Session
	sawState := make(chan State, 1)
	listener := Listener{
		OnError: func(string) {
			s.Reset()
			sawState <- s.State()
		},
	}
	s = New(guestResolver(), tr, listener, logger.NewNopLogger())

	if err := s.SelectMode(predict.ModeIdentify); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}
	if err := s.Submit(context.Background(), "aW1n", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.HandleError(predict.ErrorMessage{CorrelationToken: "tok-1", Message: "model crashed"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleError blocked; listener re-entering the session must not deadlock")
	}
	if got := <-sawState; got != StateIdle {
		t.Errorf("state read from the listener = %q, want idle", got)
	}
}

func TestStatusAfterResetDropped(t *testing.T) {
	rec := &recorder{}
	tr := &fakeTransport{respond: asyncAccepted("tok-1")}
	s := New(guestResolver(), tr, rec.listener(), logger.NewNopLogger())

	if err := s.SelectMode(predict.ModeIdentify); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}
	if err := s.Submit(context.Background(), "aW1n", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s.Reset()
	s.HandleStatus(predict.StatusUpdate{Status: "processing"})
	if len(rec.statuses) != 0 {
		t.Errorf("status after reset was delivered: %v", rec.statuses)
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	tr := &fakeTransport{respond: asyncAccepted("tok-1")}
	s := New(guestResolver(), tr, Listener{}, logger.NewNopLogger())

	if err := s.Submit(context.Background(), "aW1n", ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Submit from idle returned %v, want ErrInvalidTransition", err)
	}
	if err := s.BeginFeedback(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("BeginFeedback from idle returned %v, want ErrInvalidTransition", err)
	}
	if err := s.SelectMode(predict.ModeIdentify); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}
	if err := s.SelectMode(predict.ModeDisease); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second SelectMode returned %v, want ErrInvalidTransition", err)
	}
}

func TestFeedbackLifecycle(t *testing.T) {
	result := &predict.PredictionResult{PredictionID: 5, PredictedClass: "Tomato___healthy"}
	tr := &fakeTransport{respond: syncResult(result)}
	s := New(authedResolver("7"), tr, Listener{}, logger.NewNopLogger())

	if err := s.SelectMode(predict.ModeDisease); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}
	if err := s.Submit(context.Background(), "aW1n", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := s.BeginFeedback(); err != nil {
		t.Fatalf("BeginFeedback: %v", err)
	}
	s.ResolveFeedback(false)
	if got := s.State(); got != StateResultShown {
		t.Fatalf("state after failed feedback = %q, want result_shown", got)
	}
	if v := s.View(); v.Result != result {
		t.Error("failed feedback must leave the result untouched")
	}

	if err := s.BeginFeedback(); err != nil {
		t.Fatalf("BeginFeedback retry: %v", err)
	}
	s.ResolveFeedback(true)
	if got := s.State(); got != StateFeedbackResolved {
		t.Fatalf("state after successful feedback = %q, want feedback_resolved", got)
	}
}

func TestFeedbackAvailability(t *testing.T) {
	tests := []struct {
		name     string
		resolver *identity.Resolver
		result   *predict.PredictionResult
		want     bool
	}{
		{
			name:     "authenticated with persisted prediction",
			resolver: authedResolver("7"),
			result:   &predict.PredictionResult{PredictionID: 3, PredictedClass: "Tomato___healthy"},
			want:     true,
		},
		{
			name:     "guest",
			resolver: guestResolver(),
			result:   &predict.PredictionResult{PredictionID: 3, PredictedClass: "Tomato___healthy"},
			want:     false,
		},
		{
			name:     "authenticated but nothing persisted",
			resolver: authedResolver("7"),
			result:   &predict.PredictionResult{PredictedClass: "Tomato___healthy"},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{respond: syncResult(tt.result)}
			s := New(tt.resolver, tr, Listener{}, logger.NewNopLogger())
			if err := s.SelectMode(predict.ModeDisease); err != nil {
				t.Fatalf("SelectMode: %v", err)
			}
			if err := s.Submit(context.Background(), "aW1n", ""); err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if got := s.View().FeedbackAvailable; got != tt.want {
				t.Errorf("FeedbackAvailable = %v, want %v", got, tt.want)
			}
		})
	}
}
