package structuring

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/vertexai/genai"

	"github.com/JaimeStill/aura/internal/clinical"
	"github.com/JaimeStill/aura/internal/config"
)

// Vertex calls Gemini through Vertex AI with application default credentials.
// The client is created on first use.
type Vertex struct {
	model string
	once  func() (*genai.GenerativeModel, error)

	mu     sync.Mutex
	client *genai.Client
}

// NewVertex creates a Vertex extractor from cfg.
func NewVertex(cfg *config.StructuringConfig) *Vertex {
	v := &Vertex{model: cfg.Model}

	v.once = sync.OnceValues(func() (*genai.GenerativeModel, error) {
		client, err := genai.NewClient(context.Background(), cfg.Project, cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("create vertex client: %w", err)
		}
		v.mu.Lock()
		v.client = client
		v.mu.Unlock()

		model := client.GenerativeModel(cfg.Model)
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
		model.GenerationConfig = genai.GenerationConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr(cfg.Temperature),
			TopK:             genai.Ptr[int32](1),
			TopP:             genai.Ptr[float32](0.8),
			MaxOutputTokens:  genai.Ptr[int32](2048),
		}
		return model, nil
	})

	return v
}

func (v *Vertex) Model() string { return v.model }

func (v *Vertex) Extract(ctx context.Context, text string) (clinical.StructuredData, error) {
	model, err := v.once()
	if err != nil {
		return clinical.StructuredData{}, err
	}

	resp, err := model.GenerateContent(ctx, genai.Text(Prompt(text)))
	if err != nil {
		return clinical.StructuredData{}, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return clinical.StructuredData{}, ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return clinical.StructuredData{}, ErrEmptyResponse
	}

	return decode(b.String())
}

// Close releases the client if one was created.
func (v *Vertex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.client == nil {
		return nil
	}
	return v.client.Close()
}
