package onnxprov

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/example/photolabel/internal/classifier"
)

// Metadata describes the exported model: tensor shapes, the label set,
// and the square input size the preprocessor resizes to.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

// Provider runs a local ONNX classification model.
type Provider struct {
	modelPath    string
	metadataPath string
	topK         int
	logger       *zap.Logger

	mu           sync.Mutex
	loaded       bool
	session      *ort.AdvancedSession
	metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// New builds an unloaded provider; Load opens the session.
func New(modelPath, metadataPath string, topK int, logger *zap.Logger) *Provider {
	if topK <= 0 {
		topK = 5
	}
	return &Provider{
		modelPath:    modelPath,
		metadataPath: metadataPath,
		topK:         topK,
		logger:       logger.Named("onnx_provider"),
	}
}

// Name implements classifier.Provider.
func (p *Provider) Name() string {
	return "onnx/" + p.modelPath
}

// Load initializes the ONNX runtime and opens an inference session.
func (p *Provider) Load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	metaFile, err := os.ReadFile(p.metadataPath)
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}
	var metadata Metadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return fmt.Errorf("failed to parse metadata: %w", err)
	}
	if len(metadata.Classes) == 0 {
		return fmt.Errorf("metadata declares no classes")
	}
	if metadata.ImageSize <= 0 {
		return fmt.Errorf("metadata declares no image size")
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(p.modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}

	p.session = session
	p.metadata = metadata
	p.inputTensor = inputTensor
	p.outputTensor = outputTensor
	p.loaded = true
	p.logger.Info("model loaded",
		zap.String("model", p.modelPath),
		zap.Int("classes", len(metadata.Classes)),
		zap.Int("image_size", metadata.ImageSize))
	return nil
}

// Classify preprocesses the encoded image and runs inference. The session
// owns a single pair of tensors, so runs are serialized.
func (p *Provider) Classify(ctx context.Context, image []byte) ([]classifier.Prediction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return nil, fmt.Errorf("model not loaded")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input, err := preprocess(image, p.metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to preprocess image: %w", err)
	}

	copy(p.inputTensor.GetData(), input)
	if err := p.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	probs := softmax(p.outputTensor.GetData())
	preds := make([]classifier.Prediction, 0, len(p.metadata.Classes))
	for i, class := range p.metadata.Classes {
		if i >= len(probs) {
			break
		}
		preds = append(preds, classifier.Prediction{Label: class, Probability: float64(probs[i])})
	}
	classifier.SortByProbability(preds)
	if len(preds) > p.topK {
		preds = preds[:p.topK]
	}
	return preds, nil
}

// Close releases the ONNX session and tensors.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return
	}
	p.inputTensor.Destroy()
	p.outputTensor.Destroy()
	p.session.Destroy()
	ort.DestroyEnvironment()
	p.loaded = false
}
