package ollamaprov

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/photolabel/internal/classifier"
)

// parsePredictions extracts a prediction list from a vision-model reply.
// Models wrap JSON in prose or code fences often enough that a
// conservative bracket-slice fallback is worth carrying.
func parsePredictions(raw string, topK int) ([]classifier.Prediction, error) {
	raw = sanitizeModelJSON(raw)

	var preds []classifier.Prediction
	if err := json.Unmarshal([]byte(raw), &preds); err != nil {
		// Some models answer {"predictions": [...]} despite the prompt.
		var wrapped struct {
			Predictions []classifier.Prediction `json:"predictions"`
		}
		if err2 := json.Unmarshal([]byte(raw), &wrapped); err2 == nil && len(wrapped.Predictions) > 0 {
			preds = wrapped.Predictions
		} else if start, end := strings.Index(raw, "["), strings.LastIndex(raw, "]"); start >= 0 && end > start {
			if err3 := json.Unmarshal([]byte(raw[start:end+1]), &preds); err3 != nil {
				return nil, fmt.Errorf("model response is not a prediction list: %w", err)
			}
		} else {
			return nil, fmt.Errorf("model response is not a prediction list: %w", err)
		}
	}

	cleaned := preds[:0]
	for _, p := range preds {
		p.Label = strings.TrimSpace(p.Label)
		if p.Label == "" {
			continue
		}
		if p.Probability < 0 {
			p.Probability = 0
		}
		if p.Probability > 1 {
			p.Probability = 1
		}
		cleaned = append(cleaned, p)
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("model returned no usable predictions")
	}

	classifier.SortByProbability(cleaned)
	if topK > 0 && len(cleaned) > topK {
		cleaned = cleaned[:topK]
	}
	return cleaned, nil
}

// sanitizeModelJSON strips markdown code fences around a JSON payload.
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		if idx := strings.LastIndex(raw, "```"); idx >= 0 {
			raw = raw[:idx]
		}
		raw = strings.TrimSpace(raw)
	}
	return raw
}
