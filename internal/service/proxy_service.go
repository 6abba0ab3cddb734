package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"plant-diagnostics-web/internal/pkg/logger"
	"plant-diagnostics-web/pkg/predict"
)

// IProxyService forwards gateway API calls to the upstream classification
// backend, relaying the upstream status and body untouched.
type IProxyService interface {
	Analyze(ctx context.Context, body []byte) (int, []byte, error)
	Feedback(ctx context.Context, body []byte) (int, []byte, error)
	AnalyzeUpload(ctx context.Context, file *multipart.FileHeader, mode predict.Mode, userID int, description string) (int, []byte, error)
}

type proxyService struct {
	baseURL string
	client  *http.Client
	logger  logger.ILogger
}

func NewProxyService(baseURL string, log logger.ILogger) IProxyService {
	return &proxyService{
		baseURL: baseURL,
		client:  &http.Client{},
		logger:  log,
	}
}

func (s *proxyService) Analyze(ctx context.Context, body []byte) (int, []byte, error) {
	return s.forward(ctx, "/api/predictions/analyze", body)
}

func (s *proxyService) Feedback(ctx context.Context, body []byte) (int, []byte, error) {
	return s.forward(ctx, "/api/predictions/feedback", body)
}

// AnalyzeUpload converts a multipart image into the base64 JSON contract the
// backend speaks, then forwards like a plain analyze call.
func (s *proxyService) AnalyzeUpload(ctx context.Context, file *multipart.FileHeader, mode predict.Mode, userID int, description string) (int, []byte, error) {
	f, err := file.Open()
	if err != nil {
		return 0, nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return 0, nil, fmt.Errorf("read upload: %w", err)
	}

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(raw))

	req := predict.NewDiagnosisRequest(dataURL, mode, userID, description)
	body, err := json.Marshal(req)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal analyze request: %w", err)
	}
	return s.forward(ctx, "/api/predictions/analyze", body)
}

func (s *proxyService) forward(ctx context.Context, path string, body []byte) (int, []byte, error) {
	url := s.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("Proxy", "Upstream request failed", map[string]interface{}{
			"path": path, "error": err.Error(),
		})
		return 0, nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read upstream response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
