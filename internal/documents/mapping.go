package documents

import (
	"net/url"

	"github.com/JaimeStill/aura/internal/ledger"
	"github.com/JaimeStill/aura/pkg/query"
	"github.com/JaimeStill/aura/pkg/repository"
)

// documentColumns orders the projection; scanDocument reads in the same order.
var documentColumns = [][2]string{
	{"id", "ID"},
	{"filename", "Filename"},
	{"content_type", "ContentType"},
	{"size_bytes", "SizeBytes"},
	{"page_count", "PageCount"},
	{"storage_key", "StorageKey"},
	{"uploaded_by", "UploadedBy"},
	{"status", "Status"},
	{"uploaded_at", "UploadedAt"},
	{"updated_at", "UpdatedAt"},
}

var projection = func() *query.ProjectionMap {
	p := query.NewProjectionMap("public", "documents", "d")
	for _, c := range documentColumns {
		p.Project(c[0], c[1])
	}
	return p
}()

// Newest uploads first.
var defaultSort = query.SortField{Field: "UploadedAt", Descending: true}

// Filters contains optional filtering criteria for document queries.
// Status, UploadedBy, and ContentType match exactly; Filename is a
// case-insensitive contains match.
type Filters struct {
	Status      *string `json:"status,omitempty"`
	Filename    *string `json:"filename,omitempty"`
	UploadedBy  *string `json:"uploaded_by,omitempty"`
	ContentType *string `json:"content_type,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereContains("Filename", f.Filename).
		WhereEquals("UploadedBy", f.UploadedBy).
		WhereEquals("ContentType", f.ContentType)
}

// FiltersFromQuery reads the status, filename, uploaded_by and content_type
// query parameters. Empty parameters leave the filter unset.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters
	for param, dst := range map[string]**string{
		"status":       &f.Status,
		"filename":     &f.Filename,
		"uploaded_by":  &f.UploadedBy,
		"content_type": &f.ContentType,
	} {
		if v := values.Get(param); v != "" {
			*dst = &v
		}
	}
	return f
}

func scanDocument(s repository.Scanner) (Document, error) {
	var (
		d      Document
		status string
	)
	err := s.Scan(
		&d.ID,
		&d.Filename,
		&d.ContentType,
		&d.SizeBytes,
		&d.PageCount,
		&d.StorageKey,
		&d.UploadedBy,
		&status,
		&d.UploadedAt,
		&d.UpdatedAt,
	)
	d.Status = ledger.DocumentStatus(status)
	return d, err
}
