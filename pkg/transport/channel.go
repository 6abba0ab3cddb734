package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"plant-diagnostics-web/pkg/channel"
	"plant-diagnostics-web/pkg/predict"

	"github.com/google/uuid"
)

// ChannelTransport is the asynchronous strategy: the request is published
// to the per-user outbound subject and the call returns immediately with a
// correlation token. The eventual result arrives on the inbound channel and
// is matched back to the request by that token.
type ChannelTransport struct {
	Channel *channel.Channel
}

var _ Transport = (*ChannelTransport)(nil)

func NewChannelTransport(ch *channel.Channel) *ChannelTransport {
	return &ChannelTransport{Channel: ch}
}

func (t *ChannelTransport) Submit(_ context.Context, req *predict.DiagnosisRequest) (*Submission, error) {
	envelope := predict.RequestEnvelope{
		CorrelationToken: uuid.NewString(),
		RequestedAt:      time.Now(),
		Request:          req,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal request envelope: %w", err)
	}

	if err := t.Channel.Publish(channel.PredictSubject(req.UserID), data); err != nil {
		if errors.Is(err, channel.ErrNotConnected) {
			return nil, ErrTransportUnavailable
		}
		return nil, fmt.Errorf("publish request: %w", err)
	}

	return &Submission{CorrelationToken: envelope.CorrelationToken}, nil
}
