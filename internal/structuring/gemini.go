package structuring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/JaimeStill/aura/internal/clinical"
	"github.com/JaimeStill/aura/internal/config"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		Temperature     float32 `json:"temperature"`
		TopK            int     `json:"topK"`
		TopP            float32 `json:"topP"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Gemini calls the Generative Language REST API.
type Gemini struct {
	baseURL     string
	model       string
	apiKey      string
	temperature float32
	client      *http.Client
}

// NewGemini creates a Gemini extractor from cfg.
func NewGemini(cfg *config.StructuringConfig, client *http.Client) *Gemini {
	if client == nil {
		client = &http.Client{}
	}
	return &Gemini{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		temperature: cfg.Temperature,
		client:      client,
	}
}

func (g *Gemini) Model() string { return g.model }

func (g *Gemini) Extract(ctx context.Context, text string) (clinical.StructuredData, error) {
	if g.apiKey == "" {
		return clinical.StructuredData{}, ErrNoCredentials
	}

	body := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: Prompt(text)}}}},
	}
	body.GenerationConfig.Temperature = g.temperature
	body.GenerationConfig.TopK = 1
	body.GenerationConfig.TopP = 0.8
	body.GenerationConfig.MaxOutputTokens = 2048

	payload, err := json.Marshal(body)
	if err != nil {
		return clinical.StructuredData{}, fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.baseURL, url.PathEscape(g.model), url.QueryEscape(g.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return clinical.StructuredData{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		// the key travels in the query string
		return clinical.StructuredData{}, fmt.Errorf("call gemini: %w", redact(err, g.apiKey))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return clinical.StructuredData{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return clinical.StructuredData{}, fmt.Errorf("gemini returned %d", resp.StatusCode)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return clinical.StructuredData{}, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return clinical.StructuredData{}, ErrEmptyResponse
	}

	return decode(parsed.Candidates[0].Content.Parts[0].Text)
}

func redact(err error, secret string) error {
	if secret == "" {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), url.QueryEscape(secret), "REDACTED"))
}
