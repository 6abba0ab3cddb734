package predict

import "time"

// Mode selects which classifier head the backend runs.
type Mode string

const (
	ModeIdentify Mode = "identify"
	ModeDisease  Mode = "disease"
)

// PredictionType returns the wire value the backend expects for this mode.
func (m Mode) PredictionType() string {
	if m == ModeIdentify {
		return "identify-plant"
	}
	return "detect-disease"
}

// GuestUserID is the reserved identifier meaning "no authenticated user".
// Resolution never yields an absent id; it yields this sentinel instead.
const GuestUserID = 0

// DiagnosisRequest is one user-initiated upload. Immutable after creation.
type DiagnosisRequest struct {
	ImageBase64 string `json:"imageBase64" validate:"required"`
	Mode        Mode   `json:"-"`
	UserID      int    `json:"userId"`
	Description string `json:"description"`

	// PredictionType mirrors Mode on the wire.
	PredictionType string `json:"predictionType" validate:"required,oneof=identify-plant detect-disease"`
}

// NewDiagnosisRequest builds the immutable request for a single upload.
func NewDiagnosisRequest(imageBase64 string, mode Mode, userID int, description string) *DiagnosisRequest {
	return &DiagnosisRequest{
		ImageBase64:    imageBase64,
		Mode:           mode,
		UserID:         userID,
		Description:    description,
		PredictionType: mode.PredictionType(),
	}
}

// TopPrediction is one alternative classification candidate.
type TopPrediction struct {
	ClassName   string  `json:"class_name"`
	Probability float64 `json:"probability"`
}

// PredictionResult is the backend's answer to one DiagnosisRequest.
// Read-only after arrival; owned by the session that requested it.
type PredictionResult struct {
	PredictionID   int             `json:"prediction_id,omitempty"`
	PredictedClass string          `json:"predicted_class"`
	Confidence     float64         `json:"confidence"`
	TopPredictions []TopPrediction `json:"top_predictions,omitempty"`

	// Optional enrichment from the backend's plant/disease catalog.
	Description       string `json:"description,omitempty"`
	RecommendedAction string `json:"recommended_action,omitempty"`
}

// FeedbackJudgment is a correctness verdict on a completed prediction.
type FeedbackJudgment struct {
	PredictionID   int    `json:"predictionId" validate:"required,gt=0"`
	UserID         int    `json:"userId" validate:"required,gt=0"`
	IsCorrect      bool   `json:"isCorrect"`
	PredictedClass string `json:"predictedClass" validate:"required"`
	FeedbackText   string `json:"feedbackText"`
}

// RequestEnvelope wraps a DiagnosisRequest for the publish/subscribe path.
// The correlation token is echoed back in the matching ResultEnvelope.
type RequestEnvelope struct {
	CorrelationToken string            `json:"correlation_token"`
	RequestedAt      time.Time         `json:"requested_at"`
	Request          *DiagnosisRequest `json:"request"`
}

// ResultEnvelope carries an asynchronous prediction result.
type ResultEnvelope struct {
	CorrelationToken string            `json:"correlation_token,omitempty"`
	UserID           int               `json:"user_id"`
	Result           *PredictionResult `json:"result"`
}

// StatusUpdate is a progress notification. It never completes a session.
type StatusUpdate struct {
	CorrelationToken   string `json:"correlation_token,omitempty"`
	UserID             int    `json:"user_id"`
	Status             string `json:"status"`
	ProgressPercentage int    `json:"progress_percentage"`
	Message            string `json:"message"`
}

// ErrorMessage is a terminal failure for an in-flight asynchronous request.
type ErrorMessage struct {
	CorrelationToken string `json:"correlation_token,omitempty"`
	UserID           int    `json:"user_id"`
	ErrorCode        string `json:"error_code"`
	Message          string `json:"message"`
	Details          string `json:"details,omitempty"`
}

// FeedEntry is one broadcast prediction for the cross-user live feed.
// Broadcasts are display-only and never correlate to a local request.
type FeedEntry struct {
	PlantName      string    `json:"plant_name"`
	PredictedClass string    `json:"predicted_class"`
	Confidence     float64   `json:"confidence"`
	PredictedAt    time.Time `json:"predicted_at"`
}
