package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"plant-diagnostics-web/pkg/predict"
)

// HTTPTransport is the synchronous strategy: one blocking round trip to the
// backend. The caller's context is the only timeout imposed here.
type HTTPTransport struct {
	BaseURL string
	Client  *http.Client
}

var _ Transport = (*HTTPTransport)(nil)

func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{
		BaseURL: baseURL,
		Client:  &http.Client{},
	}
}

func (t *HTTPTransport) Submit(ctx context.Context, req *predict.DiagnosisRequest) (*Submission, error) {
	payloadBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := t.BaseURL + "/api/predictions/analyze"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("analyze request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestRejectedError{
			StatusCode: resp.StatusCode,
			Message:    extractServerMessage(bodyBytes),
		}
	}

	var result predict.PredictionResult
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return nil, &RequestRejectedError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("malformed response body: %v", err),
		}
	}

	return &Submission{Result: &result}, nil
}

// extractServerMessage pulls the human-readable text out of an error body.
// The backend uses either "message" or "error" depending on the route.
func extractServerMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if parsed.Message != "" {
		return parsed.Message
	}
	return parsed.Error
}
