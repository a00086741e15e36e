package ollamaprov

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/example/photolabel/internal/classifier"
)

const defaultPrompt = `Classify the main subject of this photo. Respond with a JSON array of up to %d objects of the form {"label": "<short noun phrase>", "probability": <number between 0 and 1>}, ordered from most to least likely. Respond with the JSON array only.`

// Provider classifies images with a vision model served by Ollama.
type Provider struct {
	client  *api.Client
	model   string
	topK    int
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	loaded bool
}

// New builds a provider talking to the Ollama server at rawURL.
func New(rawURL, model string, topK int, logger *zap.Logger) (*Provider, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama URL %q: %w", rawURL, err)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	if topK <= 0 {
		topK = 5
	}
	return &Provider{
		client:  api.NewClient(base, http.DefaultClient),
		model:   model,
		topK:    topK,
		timeout: 300 * time.Second,
		logger:  logger.Named("ollama_provider"),
	}, nil
}

// Name implements classifier.Provider.
func (p *Provider) Name() string {
	return "ollama/" + p.model
}

// Load verifies the configured model exists on the server. Ollama keeps
// the weights server-side, so a successful Show is all loading means here.
func (p *Provider) Load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		return nil
	}

	if _, err := p.client.Show(ctx, &api.ShowRequest{Model: p.model}); err != nil {
		p.logger.Error("model not available", zap.String("model", p.model), zap.Error(err))
		return fmt.Errorf("ollama model %q not available: %w", p.model, err)
	}

	p.loaded = true
	p.logger.Info("model available", zap.String("model", p.model))
	return nil
}

// Classify sends the encoded image to the vision model and parses the
// returned JSON prediction list.
func (p *Provider) Classify(ctx context.Context, image []byte) ([]classifier.Prediction, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: p.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: fmt.Sprintf(defaultPrompt, p.topK),
				Images:  []api.ImageData{api.ImageData(image)},
			},
		},
		Stream: &streamFalse,
	}

	var responseContent string
	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat error: %w", err)
	}
	if responseContent == "" {
		return nil, fmt.Errorf("empty response from ollama")
	}

	preds, err := parsePredictions(responseContent, p.topK)
	if err != nil {
		p.logger.Warn("unparseable model response", zap.String("response", responseContent), zap.Error(err))
		return nil, err
	}
	return preds, nil
}
