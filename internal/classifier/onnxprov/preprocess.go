package onnxprov

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

// preprocess decodes and resizes the image to the model's square input,
// producing CHW float32 data scaled to [0,1]. The channel count comes
// from the input shape: 1 means grayscale, 3 means RGB.
func preprocess(data []byte, meta Metadata) ([]float32, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	size := uint(meta.ImageSize)
	resized := resize.Resize(size, size, img, resize.Lanczos3)

	channels := channelCount(meta.InputShape)
	switch channels {
	case 1:
		return grayscalePlane(resized, meta.ImageSize), nil
	case 3:
		return rgbPlanes(resized, meta.ImageSize), nil
	default:
		return nil, fmt.Errorf("unsupported channel count %d in input shape %v", channels, meta.InputShape)
	}
}

// channelCount reads the channel dimension of an NCHW input shape.
func channelCount(shape []int64) int {
	if len(shape) == 4 {
		return int(shape[1])
	}
	if len(shape) == 3 {
		return int(shape[0])
	}
	return -1
}

func grayscalePlane(img image.Image, size int) []float32 {
	out := make([]float32, size*size)
	bounds := img.Bounds()
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// ITU-R BT.601 luma from 16-bit channel values.
			luma := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			out[y*size+x] = float32(luma / 65535.0)
		}
	}
	return out
}

func rgbPlanes(img image.Image, size int) []float32 {
	out := make([]float32, 3*size*size)
	plane := size * size
	bounds := img.Bounds()
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := y*size + x
			out[idx] = float32(r) / 65535.0
			out[plane+idx] = float32(g) / 65535.0
			out[2*plane+idx] = float32(b) / 65535.0
		}
	}
	return out
}

// softmax converts raw logits to probabilities. Stable against large
// logits by shifting by the max.
func softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	out := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxVal))
		out[i] = float32(e)
		sum += e
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}
