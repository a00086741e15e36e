package upload

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// PreviewMaxDim bounds the longest edge of the preview served to the
// browser; the spooled original is untouched.
const PreviewMaxDim = 800

// Preview returns a JPEG preview of a spooled image, downscaled to fit
// PreviewMaxDim. Images already within bounds are re-encoded as-is so the
// endpoint always serves one content type.
func (s *Spool) Preview(path string) ([]byte, error) {
	data, err := s.Read(path)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode spooled image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > PreviewMaxDim || bounds.Dy() > PreviewMaxDim {
		img = imaging.Fit(img, PreviewMaxDim, PreviewMaxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
