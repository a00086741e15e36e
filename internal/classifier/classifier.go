package classifier

import (
	"context"
	"fmt"
)

// Prediction is a single label/probability pair produced by the model.
// Probability is in [0,1].
type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Display renders the prediction the way the result list shows it,
// e.g. "tabby cat: %87.00".
func (p Prediction) Display() string {
	return fmt.Sprintf("%s: %%%.2f", p.Label, p.Probability*100)
}

// Provider is the external pretrained model boundary. Load prepares the
// model and is idempotent; Classify runs inference on an encoded image.
// Both may fail, and failures are surfaced to the caller rather than
// swallowed.
type Provider interface {
	// Name identifies the backend for logs and the session view.
	Name() string
	// Load makes the model available. Implementations memoize so that
	// repeated calls after a success are cheap.
	Load(ctx context.Context) error
	// Classify returns predictions for an encoded image, ordered by
	// descending probability.
	Classify(ctx context.Context, image []byte) ([]Prediction, error)
}
