// Package documents implements the ingestion stage. It stores uploaded
// mammography reports, owns the document record and its status ledger, and
// starts the pipeline by notifying the parsing stage.
package documents

import (
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/aura/internal/ledger"
)

// Document is an uploaded report and its coarse pipeline status.
type Document struct {
	ID          uuid.UUID             `json:"id"`
	Filename    string                `json:"filename"`
	ContentType string                `json:"content_type"`
	SizeBytes   int64                 `json:"size_bytes"`
	PageCount   *int                  `json:"page_count"`
	StorageKey  string                `json:"storage_key"`
	UploadedBy  string                `json:"uploaded_by"`
	Status      ledger.DocumentStatus `json:"status"`
	UploadedAt  time.Time             `json:"uploaded_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// CreateCommand carries an upload. PageCount is set for PDFs.
type CreateCommand struct {
	Data        []byte
	Filename    string
	ContentType string
	PageCount   *int
	UploadedBy  string
}

// StatusView is a document together with its processing history.
type StatusView struct {
	Document *Document      `json:"document"`
	History  []ledger.Entry `json:"processing_statuses"`
}

// StatusUpdate is posted by downstream stages to record a processing event.
type StatusUpdate struct {
	DocumentID   uuid.UUID      `json:"document_id"`
	ServiceName  ledger.Service `json:"service_name"`
	Status       string         `json:"status"`
	ErrorMessage *string        `json:"error_message,omitempty"`
}

// DocumentStatusUpdate replaces the coarse status of a document.
type DocumentStatusUpdate struct {
	Status ledger.DocumentStatus `json:"status"`
}
