package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/JaimeStill/aura/internal/clinical"
	"github.com/JaimeStill/aura/internal/config"
)

// Classes are the BI-RADS categories the classifier distinguishes.
var Classes = []string{"0", "1", "2", "3", "4", "5", "6"}

// Label returns the display label of a class, e.g. "BI-RADS 4".
func Label(class string) string {
	return "BI-RADS " + class
}

// Scores maps each class to its probability.
type Scores map[string]float64

// Best returns the most probable class. Ties resolve to the lower class.
func (s Scores) Best() (string, float64) {
	best, score := Classes[0], -1.0
	for _, c := range Classes {
		if p := s[c]; p > score {
			best, score = c, p
		}
	}
	return best, score
}

func (s Scores) clone() Scores {
	out := make(Scores, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// normalized rescales s over Classes so the probabilities sum to one.
func (s Scores) normalized() (Scores, error) {
	var total float64
	for _, c := range Classes {
		if s[c] < 0 {
			return nil, fmt.Errorf("negative score for class %s", c)
		}
		total += s[c]
	}
	if total == 0 {
		return nil, errors.New("classifier returned no usable scores")
	}

	out := make(Scores, len(Classes))
	for _, c := range Classes {
		out[c] = s[c] / total
	}
	return out, nil
}

// Classifier produces class probabilities for structured report data.
type Classifier interface {
	Classify(ctx context.Context, data clinical.StructuredData) (Scores, error)
}

// ClassOf extracts the BI-RADS class from a label such as "LABEL_3",
// "BI-RADS 4A", or "5". The first run of digits must be a single digit in
// 0-6; "10" and "LABEL_12" are rejected.
func ClassOf(label string) (string, bool) {
	start := strings.IndexFunc(label, isDigit)
	if start < 0 {
		return "", false
	}
	end := start + 1
	if end < len(label) && isDigit(rune(label[end])) {
		return "", false
	}
	if label[start] > '6' {
		return "", false
	}
	return label[start:end], true
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Remote calls a text-classification inference endpoint.
type Remote struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewRemote creates a Remote classifier from cfg.
func NewRemote(cfg *config.PredictionConfig, client *http.Client) *Remote {
	if client == nil {
		client = &http.Client{}
	}
	return &Remote{endpoint: cfg.Endpoint, token: cfg.Token, client: client}
}

func (r *Remote) Classify(ctx context.Context, data clinical.StructuredData) (Scores, error) {
	payload, err := json.Marshal(map[string]any{
		"inputs":     data.Text(),
		"parameters": map[string]any{"top_k": len(Classes)},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call classifier: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw[:min(len(raw), 256)])))
	}

	items, err := decodeScores(raw)
	if err != nil {
		return nil, err
	}

	scores := make(Scores, len(Classes))
	for _, it := range items {
		if class, ok := ClassOf(it.Label); ok {
			scores[class] += it.Score
		}
	}
	return scores.normalized()
}

// decodeScores accepts both [[{label, score}]] and [{label, score}].
func decodeScores(raw []byte) ([]labelScore, error) {
	var nested [][]labelScore
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested) > 0 {
		return nested[0], nil
	}

	var flat []labelScore
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("decode classifier response: %w", err)
	}
	return flat, nil
}

// Baseline derives a distribution centred on the extracted BI-RADS score.
// Reports without a score concentrate on class 0.
type Baseline struct{}

const (
	baselinePeak     = 0.7
	baselineNeighbor = 0.1
	baselineUnknown  = 0.4
)

func (Baseline) Classify(_ context.Context, data clinical.StructuredData) (Scores, error) {
	scores := make(Scores, len(Classes))

	center, ok := ClassOf(data.BIRADSScore)
	if clinical.IsUnknown(data.BIRADSScore) || !ok {
		scores["0"] = baselineUnknown
		rest := (1 - baselineUnknown) / float64(len(Classes)-1)
		for _, c := range Classes[1:] {
			scores[c] = rest
		}
		return scores, nil
	}

	idx := int(center[0] - '0')
	assigned := map[int]float64{idx: baselinePeak}
	for _, n := range []int{idx - 1, idx + 1} {
		if n >= 0 && n < len(Classes) {
			assigned[n] = baselineNeighbor
		}
	}

	var used float64
	for _, p := range assigned {
		used += p
	}
	rest := (1 - used) / float64(len(Classes)-len(assigned))

	for i, c := range Classes {
		if p, ok := assigned[i]; ok {
			scores[c] = p
		} else {
			scores[c] = rest
		}
	}
	return scores, nil
}
