package parsing

import (
	"path/filepath"
	"strings"
)

// Format names the source representation text was extracted from.
type Format string

const (
	FormatText  Format = "text"
	FormatDOCX  Format = "docx"
	FormatPDF   Format = "pdf"
	FormatImage Format = "image"
)

var formats = map[string]Format{
	".txt":  FormatText,
	".md":   FormatText,
	".docx": FormatDOCX,
	".pdf":  FormatPDF,
	".png":  FormatImage,
	".jpg":  FormatImage,
	".jpeg": FormatImage,
	".tiff": FormatImage,
	".tif":  FormatImage,
}

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
}

// FormatOf returns the Format for the extension of name.
func FormatOf(name string) (Format, bool) {
	f, ok := formats[strings.ToLower(filepath.Ext(name))]
	return f, ok
}

// Remote reports whether the format is converted by the external converter.
func (f Format) Remote() bool {
	return f == FormatPDF || f == FormatImage
}

func contentTypeOf(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}
