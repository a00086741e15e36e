package ollamaprov

import (
	"testing"
)

func TestParsePredictionsPlainArray(t *testing.T) {
	raw := `[{"label": "tabby cat", "probability": 0.87}, {"label": "tiger cat", "probability": 0.06}]`

	preds, err := parsePredictions(raw, 5)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(preds) != 2 {
		t.Fatalf("expected 2 predictions, got %d", len(preds))
	}
	if preds[0].Label != "tabby cat" || preds[0].Probability != 0.87 {
		t.Fatalf("unexpected top prediction: %+v", preds[0])
	}
}

func TestParsePredictionsCodeFence(t *testing.T) {
	raw := "```json\n[{\"label\": \"golden retriever\", \"probability\": 0.91}]\n```"

	preds, err := parsePredictions(raw, 5)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(preds) != 1 || preds[0].Label != "golden retriever" {
		t.Fatalf("unexpected predictions: %+v", preds)
	}
}

func TestParsePredictionsWrappedObject(t *testing.T) {
	raw := `{"predictions": [{"label": "espresso", "probability": 0.5}]}`

	preds, err := parsePredictions(raw, 5)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(preds) != 1 || preds[0].Label != "espresso" {
		t.Fatalf("unexpected predictions: %+v", preds)
	}
}

func TestParsePredictionsProseAroundArray(t *testing.T) {
	raw := `Sure! Here is the classification: [{"label": "red fox", "probability": 0.74}] Hope that helps.`

	preds, err := parsePredictions(raw, 5)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(preds) != 1 || preds[0].Label != "red fox" {
		t.Fatalf("unexpected predictions: %+v", preds)
	}
}

func TestParsePredictionsSortsAndTruncates(t *testing.T) {
	raw := `[
		{"label": "a", "probability": 0.1},
		{"label": "b", "probability": 0.6},
		{"label": "c", "probability": 0.3}
	]`

	preds, err := parsePredictions(raw, 2)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(preds) != 2 {
		t.Fatalf("expected truncation to 2, got %d", len(preds))
	}
	if preds[0].Label != "b" || preds[1].Label != "c" {
		t.Fatalf("expected descending order b,c; got %+v", preds)
	}
}

func TestParsePredictionsClampsProbability(t *testing.T) {
	raw := `[{"label": "cat", "probability": 1.7}, {"label": "dog", "probability": -0.2}]`

	preds, err := parsePredictions(raw, 5)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if preds[0].Probability != 1 {
		t.Fatalf("expected clamp to 1, got %f", preds[0].Probability)
	}
	if preds[1].Probability != 0 {
		t.Fatalf("expected clamp to 0, got %f", preds[1].Probability)
	}
}

func TestParsePredictionsRejectsProse(t *testing.T) {
	if _, err := parsePredictions("I cannot identify this image.", 5); err == nil {
		t.Fatal("expected error for non-JSON response")
	}
}

func TestParsePredictionsRejectsEmptyLabels(t *testing.T) {
	if _, err := parsePredictions(`[{"label": "  ", "probability": 0.9}]`, 5); err == nil {
		t.Fatal("expected error when no usable predictions remain")
	}
}
