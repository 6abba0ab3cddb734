package transport

import (
	"context"
	"errors"
	"fmt"

	"plant-diagnostics-web/pkg/predict"
)

// ErrTransportUnavailable means no delivery path is currently connected.
// The submission is rejected immediately, never queued.
var ErrTransportUnavailable = errors.New("transport: unavailable")

// RequestRejectedError is a sync-path refusal: non-2xx status or a body the
// client could not use. Message carries the server's own wording when the
// error body had one.
type RequestRejectedError struct {
	StatusCode int
	Message    string
}

func (e *RequestRejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("transport: request rejected (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("transport: request rejected (%d)", e.StatusCode)
}

// Submission is the outcome of handing a request to a transport: either a
// direct result (sync) or an acceptance token (async, result arrives later).
type Submission struct {
	Result           *predict.PredictionResult
	CorrelationToken string
}

// Async reports whether the result will arrive later on the channel.
func (s *Submission) Async() bool {
	return s.Result == nil
}

// Transport submits one diagnosis request. Implementations are
// interchangeable; the session does not care which delivery mode answered.
type Transport interface {
	Submit(ctx context.Context, req *predict.DiagnosisRequest) (*Submission, error)
}
