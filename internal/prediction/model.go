package prediction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"

	"github.com/JaimeStill/aura/internal/clinical"
	"github.com/JaimeStill/aura/internal/config"
)

const memoSize = 1024

// ModelInfo describes the classifier served by this process.
type ModelInfo struct {
	ModelVersion  string  `json:"model_version"`
	Provider      string  `json:"provider"`
	Loaded        bool    `json:"loaded"`
	Workers       int     `json:"workers"`
	MinConfidence float64 `json:"min_confidence"`
	Cached        int     `json:"cached"`
}

// Model is the shared classifier handle. The classifier is created on first
// use, inference is bounded by the configured worker count, and results are
// memoized by input since classification is deterministic.
type Model struct {
	cfg    *config.PredictionConfig
	load   func() (Classifier, error)
	loaded atomic.Bool
	sem    *semaphore.Weighted
	memo   *lru.Cache[string, Scores]
}

// NewModel creates the handle for cfg.
func NewModel(cfg *config.PredictionConfig, client *http.Client) *Model {
	return newModel(cfg, func() (Classifier, error) {
		switch cfg.Provider {
		case config.ClassifierRemote:
			return NewRemote(cfg, client), nil
		case config.ClassifierBaseline:
			return Baseline{}, nil
		default:
			return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
		}
	})
}

// NewModelWith wraps an existing classifier.
func NewModelWith(cfg *config.PredictionConfig, c Classifier) *Model {
	return newModel(cfg, func() (Classifier, error) { return c, nil })
}

func newModel(cfg *config.PredictionConfig, build func() (Classifier, error)) *Model {
	memo, _ := lru.New[string, Scores](memoSize)
	m := &Model{
		cfg:  cfg,
		sem:  semaphore.NewWeighted(int64(max(cfg.Workers, 1))),
		memo: memo,
	}
	m.load = sync.OnceValues(func() (Classifier, error) {
		c, err := build()
		if err == nil {
			m.loaded.Store(true)
		}
		return c, err
	})
	return m
}

// Predict returns normalized class probabilities for data.
func (m *Model) Predict(ctx context.Context, data clinical.StructuredData) (Scores, error) {
	key := inputKey(data)
	if s, ok := m.memo.Get(key); ok {
		return s.clone(), nil
	}

	c, err := m.load()
	if err != nil {
		return nil, fmt.Errorf("load classifier: %w", err)
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for classifier: %w", err)
	}
	defer m.sem.Release(1)

	raw, err := c.Classify(ctx, data)
	if err != nil {
		return nil, err
	}
	scores, err := raw.normalized()
	if err != nil {
		return nil, err
	}

	m.memo.Add(key, scores.clone())
	return scores, nil
}

// Info reports the model version, provider, and load state.
func (m *Model) Info() ModelInfo {
	return ModelInfo{
		ModelVersion:  m.cfg.ModelVersion,
		Provider:      m.cfg.Provider,
		Loaded:        m.loaded.Load(),
		Workers:       m.cfg.Workers,
		MinConfidence: m.cfg.MinConfidence,
		Cached:        m.memo.Len(),
	}
}

func inputKey(data clinical.StructuredData) string {
	sum := sha256.Sum256([]byte(data.Text()))
	return hex.EncodeToString(sum[:])
}
