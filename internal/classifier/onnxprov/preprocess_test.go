package onnxprov

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestPreprocessGrayscaleShape(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.White)
		}
	}
	meta := Metadata{InputShape: []int64{1, 1, 4, 4}, ImageSize: 4}

	data, err := preprocess(encodePNG(t, img), meta)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(data) != 16 {
		t.Fatalf("expected 16 values for 4x4 grayscale, got %d", len(data))
	}
	for i, v := range data {
		if v < 0.99 || v > 1.0 {
			t.Fatalf("expected white pixel near 1.0 at %d, got %f", i, v)
		}
	}
}

func TestPreprocessRGBShape(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	red := color.RGBA{R: 255, A: 255}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, red)
		}
	}
	meta := Metadata{InputShape: []int64{1, 3, 4, 4}, ImageSize: 4}

	data, err := preprocess(encodePNG(t, img), meta)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(data) != 48 {
		t.Fatalf("expected 48 values for 4x4 RGB, got %d", len(data))
	}
	// Red plane near 1, green and blue planes near 0.
	if data[0] < 0.99 {
		t.Fatalf("expected red plane near 1.0, got %f", data[0])
	}
	if data[16] > 0.01 || data[32] > 0.01 {
		t.Fatalf("expected green/blue planes near 0, got %f and %f", data[16], data[32])
	}
}

func TestPreprocessRejectsGarbage(t *testing.T) {
	meta := Metadata{InputShape: []int64{1, 3, 4, 4}, ImageSize: 4}
	if _, err := preprocess([]byte("not an image"), meta); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestPreprocessRejectsUnsupportedChannels(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	meta := Metadata{InputShape: []int64{1, 4, 4, 4}, ImageSize: 4}
	if _, err := preprocess(encodePNG(t, img), meta); err == nil {
		t.Fatal("expected error for 4-channel input shape")
	}
}

func TestSoftmaxSumsToOne(t *testing.T) {
	probs := softmax([]float32{2.0, 1.0, 0.1})

	var sum float64
	for _, p := range probs {
		sum += float64(p)
	}
	if math.Abs(sum-1.0) > 1e-5 {
		t.Fatalf("expected probabilities to sum to 1, got %f", sum)
	}
	if !(probs[0] > probs[1] && probs[1] > probs[2]) {
		t.Fatalf("expected monotone probabilities, got %v", probs)
	}
}

func TestSoftmaxStableOnLargeLogits(t *testing.T) {
	probs := softmax([]float32{1000, 999})

	if math.IsNaN(float64(probs[0])) || math.IsInf(float64(probs[0]), 0) {
		t.Fatalf("softmax overflowed: %v", probs)
	}
	if probs[0] <= probs[1] {
		t.Fatalf("expected first logit to dominate, got %v", probs)
	}
}
