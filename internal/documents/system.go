package documents

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/aura/pkg/pagination"
)

// System defines the public contract for document domain operations.
type System interface {
	Handler(maxUploadSize int64) *Handler

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Document], error)

	Find(ctx context.Context, id uuid.UUID) (*Document, error)
	Status(ctx context.Context, id uuid.UUID) (*StatusView, error)

	// Create stores the file, registers the document, and starts the pipeline.
	Create(ctx context.Context, cmd CreateCommand) (*Document, error)
	// Reprocess resets the document to uploaded and starts the pipeline again.
	Reprocess(ctx context.Context, id uuid.UUID) (*Document, error)
	// Delete removes the document, its history, downstream results, and the
	// stored file. Downstream and blob cleanup are best effort.
	Delete(ctx context.Context, id uuid.UUID) error

	RecordStatus(ctx context.Context, update StatusUpdate) error
	SetStatus(ctx context.Context, id uuid.UUID, update DocumentStatusUpdate) error
}

// Purger removes a document's results from the downstream stages.
type Purger interface {
	Purge(ctx context.Context, documentID uuid.UUID) error
}
