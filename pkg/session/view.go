package session

import "plant-diagnostics-web/pkg/predict"

// View is the render snapshot the host consumes at ResultShown. The raw
// result is exposed unmodified; only the display fields apply label parsing.
type View struct {
	State  State
	Mode   predict.Mode
	Result *predict.PredictionResult

	// PlantName is the plant portion of the label (identify mode display).
	PlantName string

	// Healthy is the disease-mode classification of the full label.
	Healthy bool

	// Alternatives are the top candidates to offer as "other possibilities".
	// In identify mode, candidates naming the primary plant are dropped.
	Alternatives []predict.TopPrediction

	// FeedbackAvailable is true only for authenticated users rating a
	// prediction the backend actually persisted.
	FeedbackAvailable bool
}

// View builds the current render snapshot.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{State: s.state, Mode: s.mode, Result: s.result}
	if s.result == nil {
		return v
	}

	v.PlantName = predict.ParsePlantName(s.result.PredictedClass)
	v.Healthy = predict.IsHealthy(s.result.PredictedClass)
	v.Alternatives = s.result.TopPredictions
	if s.mode == predict.ModeIdentify {
		v.Alternatives = predict.FilterAlternatives(s.result.PredictedClass, s.result.TopPredictions)
	}
	v.FeedbackAvailable = s.result.PredictionID > 0 && s.resolver.IsAuthenticated()
	return v
}
