package usecase

import (
	"github.com/example/photolabel/internal/workflow"
)

// PredictionView is one row of the rendered result list.
type PredictionView struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
	Display     string  `json:"display"`
}

// View is the session as the UI renders it: the state plus the derived
// flags, so the browser never re-derives workflow rules.
type View struct {
	SessionID   string           `json:"session_id"`
	State       workflow.State   `json:"state"`
	ActionLabel string           `json:"action_label"`
	ShowImage   bool             `json:"show_image"`
	ShowResults bool             `json:"show_results"`
	Provider    string           `json:"provider"`
	ImageName   string           `json:"image_name,omitempty"`
	Predictions []PredictionView `json:"predictions,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
}

func (uc *WorkflowUseCase) view(sess *workflow.Session) *View {
	v := &View{
		SessionID:   sess.ID,
		State:       sess.State,
		ActionLabel: workflow.ActionLabel(sess.State),
		ShowImage:   workflow.ShowImage(sess.State) && sess.HasImage(),
		ShowResults: workflow.ShowResults(sess.State),
		Provider:    uc.provider.Name(),
		ImageName:   sess.ImageName,
		LastError:   sess.LastError,
	}
	if workflow.ShowResults(sess.State) {
		for _, p := range sess.Predictions {
			v.Predictions = append(v.Predictions, PredictionView{
				Label:       p.Label,
				Probability: p.Probability,
				Display:     p.Display(),
			})
		}
	}
	return v
}
