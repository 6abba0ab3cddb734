package feedback

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"plant-diagnostics-web/pkg/predict"
)

func TestHTTPSubmitterPostsJudgment(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	s := NewHTTPSubmitter(srv.URL)
	err := s.SubmitFeedback(context.Background(), &predict.FeedbackJudgment{
		PredictionID:   5,
		UserID:         7,
		IsCorrect:      false,
		PredictedClass: "Tomato___Late_blight",
		FeedbackText:   "Prediction is incorrect",
	})
	if err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}

	if gotPath != "/api/predictions/feedback" {
		t.Errorf("posted to %q", gotPath)
	}
	var wire map[string]interface{}
	if err := json.Unmarshal(gotBody, &wire); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if wire["predictionId"] != float64(5) || wire["userId"] != float64(7) || wire["isCorrect"] != false {
		t.Errorf("wire body mismatch: %v", wire)
	}
}

func TestHTTPSubmitterRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"not yours"}`))
	}))
	defer srv.Close()

	s := NewHTTPSubmitter(srv.URL)
	err := s.SubmitFeedback(context.Background(), &predict.FeedbackJudgment{PredictionID: 5, UserID: 7, PredictedClass: "x"})
	if err == nil {
		t.Fatal("expected rejection to surface as an error")
	}
}
