package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"plant-diagnostics-web/pkg/predict"
)

// HTTPSubmitter posts judgments to the backend feedback endpoint.
type HTTPSubmitter struct {
	BaseURL string
	Client  *http.Client
}

var _ Submitter = (*HTTPSubmitter)(nil)

func NewHTTPSubmitter(baseURL string) *HTTPSubmitter {
	return &HTTPSubmitter{
		BaseURL: baseURL,
		Client:  &http.Client{},
	}
}

func (s *HTTPSubmitter) SubmitFeedback(ctx context.Context, judgment *predict.FeedbackJudgment) error {
	payloadBytes, err := json.Marshal(judgment)
	if err != nil {
		return fmt.Errorf("marshal judgment: %w", err)
	}

	url := s.BaseURL + "/api/predictions/feedback"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("feedback request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("feedback rejected: status %d, body: %s", resp.StatusCode, string(body))
	}
	return nil
}
