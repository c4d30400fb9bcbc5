package documents

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/JaimeStill/aura/pkg/formatting"
)

// AllowedExtensions lists the file types accepted for upload.
var AllowedExtensions = []string{".pdf", ".docx", ".txt", ".png", ".jpg", ".jpeg", ".tiff", ".tif"}

var extensionTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain; charset=utf-8",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
}

func validateUpload(filename string, size, maxSize int64) error {
	if strings.TrimSpace(filename) == "" {
		return fmt.Errorf("%w: missing filename", ErrInvalidFile)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !slices.Contains(AllowedExtensions, ext) {
		return fmt.Errorf("%w: unsupported file type %q", ErrInvalidFile, ext)
	}
	if size == 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidFile)
	}
	if maxSize > 0 && size > maxSize {
		return fmt.Errorf("%w: %s exceeds %s", ErrFileTooLarge,
			formatting.FormatBytes(size, 1), formatting.FormatBytes(maxSize, 0))
	}
	return nil
}

// buildStorageKey partitions uploads by date: uploads/YYYY/MM/DD/<id><ext>.
func buildStorageKey(at time.Time, id uuid.UUID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("uploads/%s/%s%s", at.UTC().Format("2006/01/02"), id, ext)
}

func detectContentType(header, filename string, data []byte) string {
	header = strings.TrimSpace(header)
	if header != "" && header != "application/octet-stream" {
		return header
	}
	if ct, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return http.DetectContentType(data)
}

func extractPDFPageCount(logger *slog.Logger, data []byte, filename string) *int {
	if strings.ToLower(filepath.Ext(filename)) != ".pdf" {
		return nil
	}

	count, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		logger.Warn("failed to extract PDF page count", "filename", filename, "error", err)
		return nil
	}

	return &count
}
