// Package ledger records per-document, per-stage processing events and the
// coarse document status that clients poll.
package ledger

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/aura/internal/stage"
)

// Service names the pipeline stage that reported an entry.
type Service string

const (
	ServiceIngestion   Service = "document_ingestion"
	ServiceParsing     Service = "document_parsing"
	ServiceStructuring Service = "information_structuring"
	ServicePrediction  Service = "risk_prediction"
)

// Services lists every known reporting service in pipeline order.
var Services = []Service{ServiceIngestion, ServiceParsing, ServiceStructuring, ServicePrediction}

// Valid reports whether s is a known service.
func (s Service) Valid() bool {
	return slices.Contains(Services, s)
}

// DocumentStatus is the coarse lifecycle status of a document.
type DocumentStatus string

const (
	DocumentUploaded   DocumentStatus = "uploaded"
	DocumentParsed     DocumentStatus = "parsed"
	DocumentStructured DocumentStatus = "structured"
	DocumentPredicted  DocumentStatus = "predicted"
	DocumentFailed     DocumentStatus = "failed"
)

// DocumentStatuses lists the valid coarse statuses.
var DocumentStatuses = []DocumentStatus{
	DocumentUploaded, DocumentParsed, DocumentStructured, DocumentPredicted, DocumentFailed,
}

// Valid reports whether s is a known document status.
func (s DocumentStatus) Valid() bool {
	return slices.Contains(DocumentStatuses, s)
}

// Entry is one append-only processing event.
type Entry struct {
	ID           string       `json:"id"`
	DocumentID   uuid.UUID    `json:"document_id"`
	ServiceName  Service      `json:"service_name"`
	Status       stage.Status `json:"status"`
	ErrorMessage *string      `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// System is the ledger contract.
type System interface {
	// Record appends an entry. It never overwrites earlier entries.
	Record(ctx context.Context, documentID uuid.UUID, service Service, status stage.Status, errMsg string) (*Entry, error)
	// SetDocumentStatus replaces the coarse status of a document.
	SetDocumentStatus(ctx context.Context, documentID uuid.UUID, status DocumentStatus) error
	// History returns a document's entries oldest first.
	History(ctx context.Context, documentID uuid.UUID) ([]Entry, error)
}

func validStatus(s stage.Status) bool {
	return slices.Contains([]stage.Status{
		stage.StatusPending, stage.StatusProcessing, stage.StatusCompleted, stage.StatusFailed,
	}, s)
}
