package stage_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/JaimeStill/aura/internal/stage"
)

func TestResolveMarksStaleProcessingAsFailed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := &stage.Result[output]{
		DocumentID: uuid.New(),
		Status:     stage.StatusProcessing,
		Progress:   40,
		UpdatedAt:  now.Add(-20 * time.Minute),
	}

	got := r.Resolve(now, 15*time.Minute)

	assert.Equal(t, stage.StatusFailed, got.Status)
	assert.True(t, got.Stale)
	assert.Contains(t, *got.ErrorMessage, "stale")
	assert.Equal(t, stage.StatusProcessing, r.Status, "stored value is untouched")
}

func TestResolveKeepsFreshAndTerminalResults(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		status  stage.Status
		updated time.Time
	}{
		{"fresh processing", stage.StatusProcessing, now.Add(-time.Minute)},
		{"old completed", stage.StatusCompleted, now.Add(-time.Hour)},
		{"old failed", stage.StatusFailed, now.Add(-time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &stage.Result[output]{Status: tt.status, UpdatedAt: tt.updated}
			got := r.Resolve(now, 15*time.Minute)
			assert.Equal(t, tt.status, got.Status)
			assert.False(t, got.Stale)
		})
	}
}

func TestSnapshotResolve(t *testing.T) {
	now := time.Now()
	s := &stage.Snapshot{Status: stage.StatusPending, UpdatedAt: now.Add(-time.Hour)}

	got := s.Resolve(now, time.Minute)
	assert.Equal(t, stage.StatusFailed, got.Status)
	assert.True(t, got.Stale)

	assert.Same(t, s, s.Resolve(now, 0), "zero staleAfter disables the rule")
}

func TestMapHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, stage.MapHTTPStatus(stage.ErrValidation))
	assert.Equal(t, http.StatusNotFound, stage.MapHTTPStatus(stage.ErrNotFound))
	assert.Equal(t, http.StatusInternalServerError, stage.MapHTTPStatus(stage.ErrTransformation))
}
