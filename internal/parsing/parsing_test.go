package parsing_test

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/aura/internal/parsing"
	"github.com/JaimeStill/aura/internal/pipeline"
	"github.com/JaimeStill/aura/internal/stage"
	"github.com/JaimeStill/aura/pkg/lifecycle"
	"github.com/JaimeStill/aura/pkg/storage"
)

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[string][]byte)}
}

func (m *memoryStorage) Start(*lifecycle.Coordinator) error { return nil }

func (m *memoryStorage) Upload(_ context.Context, key string, r io.Reader, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryStorage) Exists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, storage.ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

type stubConverter struct {
	html string
	err  error
	hits int
}

func (s *stubConverter) Convert(context.Context, []byte, string) (string, error) {
	s.hits++
	return s.html, s.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noProgress(int) {}

func docx(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body bytes.Buffer
	body.WriteString(`<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t xml:space="preserve">` + p + `</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write(body.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		name   string
		format parsing.Format
		ok     bool
		remote bool
	}{
		{"report.txt", parsing.FormatText, true, false},
		{"report.MD", parsing.FormatText, true, false},
		{"report.docx", parsing.FormatDOCX, true, false},
		{"report.pdf", parsing.FormatPDF, true, true},
		{"scan.TIF", parsing.FormatImage, true, true},
		{"scan.jpeg", parsing.FormatImage, true, true},
		{"report.exe", "", false, false},
		{"report", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := parsing.FormatOf(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.format, f)
			assert.Equal(t, tt.remote, f.Remote())
		})
	}
}

func TestValidate(t *testing.T) {
	store := newMemoryStorage()
	store.objects["uploads/a.txt"] = []byte("x")
	work := parsing.NewWork(store, &stubConverter{}, discard())
	id := uuid.New()

	tests := []struct {
		name string
		in   pipeline.ParseRequest
		want error
	}{
		{"ok", pipeline.ParseRequest{DocumentID: id, FilePath: "uploads/a.txt", Filename: "a.txt"}, nil},
		{"missing document", pipeline.ParseRequest{FilePath: "uploads/a.txt"}, stage.ErrValidation},
		{"missing path", pipeline.ParseRequest{DocumentID: id}, stage.ErrValidation},
		{"unsupported", pipeline.ParseRequest{DocumentID: id, FilePath: "uploads/a.exe"}, stage.ErrValidation},
		{"absent", pipeline.ParseRequest{DocumentID: id, FilePath: "uploads/b.txt"}, stage.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := work.Validate(context.Background(), tt.in)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTransformText(t *testing.T) {
	store := newMemoryStorage()
	store.objects["uploads/r.txt"] = []byte("Indication: screening\r\n\r\n\r\n\r\nBI-RADS 2\n")
	conv := &stubConverter{}
	work := parsing.NewWork(store, conv, discard())
	id := uuid.New()

	var seen []int
	out, err := work.Transform(context.Background(), pipeline.ParseRequest{
		DocumentID: id,
		FilePath:   "uploads/r.txt",
		Filename:   "r.txt",
	}, func(pct int) { seen = append(seen, pct) })
	require.NoError(t, err)

	assert.Equal(t, "Indication: screening\n\nBI-RADS 2", out.ExtractedText)
	assert.Equal(t, parsing.FormatText, out.Format)
	assert.Nil(t, out.PageCount)
	assert.Equal(t, "parsed/"+id.String()+".md", out.ArtifactKey)
	assert.Equal(t, out.ExtractedText, string(store.objects[out.ArtifactKey]))
	assert.Zero(t, conv.hits)
	assert.IsIncreasing(t, seen)
}

func TestTransformDOCX(t *testing.T) {
	store := newMemoryStorage()
	store.objects["uploads/r.docx"] = docx(t, "Mammography report", "", "BI-RADS 3")
	work := parsing.NewWork(store, &stubConverter{}, discard())

	out, err := work.Transform(context.Background(), pipeline.ParseRequest{
		DocumentID: uuid.New(),
		FilePath:   "uploads/r.docx",
	}, noProgress)
	require.NoError(t, err)

	assert.Equal(t, parsing.FormatDOCX, out.Format)
	assert.Equal(t, "Mammography report\nBI-RADS 3", out.ExtractedText)
}

func TestTransformImageUsesConverter(t *testing.T) {
	store := newMemoryStorage()
	store.objects["uploads/scan.png"] = []byte{0x89, 'P', 'N', 'G'}
	conv := &stubConverter{html: "<html><body><h1>Findings</h1><p>BI-RADS 4</p></body></html>"}
	work := parsing.NewWork(store, conv, discard())

	out, err := work.Transform(context.Background(), pipeline.ParseRequest{
		DocumentID: uuid.New(),
		FilePath:   "uploads/scan.png",
		Filename:   "scan.png",
	}, noProgress)
	require.NoError(t, err)

	assert.Equal(t, 1, conv.hits)
	assert.Equal(t, parsing.FormatImage, out.Format)
	assert.Equal(t, "# Findings\n\nBI-RADS 4", out.ExtractedText)
}

func TestTransformImageWithoutConverter(t *testing.T) {
	store := newMemoryStorage()
	store.objects["uploads/scan.png"] = []byte{0x89, 'P', 'N', 'G'}
	work := parsing.NewWork(store, nil, discard())

	_, err := work.Transform(context.Background(), pipeline.ParseRequest{
		DocumentID: uuid.New(),
		FilePath:   "uploads/scan.png",
	}, noProgress)
	assert.ErrorIs(t, err, stage.ErrTransformation)
	assert.ErrorContains(t, err, "no converter")
}

func TestTransformFailures(t *testing.T) {
	store := newMemoryStorage()
	store.objects["uploads/bad.pdf"] = []byte("not a pdf")
	store.objects["uploads/empty.txt"] = []byte("   \n")
	store.objects["uploads/scan.jpg"] = []byte{0xff, 0xd8}
	work := parsing.NewWork(store, &stubConverter{html: "<html><body></body></html>"}, discard())

	for _, key := range []string{"uploads/bad.pdf", "uploads/empty.txt", "uploads/scan.jpg", "uploads/gone.txt"} {
		t.Run(key, func(t *testing.T) {
			_, err := work.Transform(context.Background(), pipeline.ParseRequest{
				DocumentID: uuid.New(),
				FilePath:   key,
			}, noProgress)
			assert.ErrorIs(t, err, stage.ErrTransformation)
		})
	}
}

func TestTika(t *testing.T) {
	var gotMethod, gotPath, gotAccept, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotAccept, gotType = r.Header.Get("Accept"), r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte("<html><body><p>ok</p></body></html>"))
	}))
	defer srv.Close()

	html, err := parsing.NewTika(srv.URL+"/", srv.Client()).Convert(context.Background(), []byte("%PDF"), "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/tika", gotPath)
	assert.Equal(t, "text/html", gotAccept)
	assert.Equal(t, "application/pdf", gotType)
	assert.Equal(t, []byte("%PDF"), gotBody)
	assert.Contains(t, html, "<p>ok</p>")
}

func TestTikaErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unprocessable", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := parsing.NewTika(srv.URL, srv.Client()).Convert(context.Background(), []byte("x"), "image/png")
	assert.ErrorContains(t, err, "422")

	_, err = parsing.NewTika("", nil).Convert(context.Background(), []byte("x"), "image/png")
	assert.Error(t, err)
}

func TestMarkdownSanitizes(t *testing.T) {
	md, err := parsing.Markdown(`<html><body><h2>Impression</h2><script>alert(1)</script><p onclick="x()">Benign</p>` +
		`<table><tr><th>Side</th><th>BI-RADS</th></tr><tr><td>Left</td><td>2</td></tr></table></body></html>`)
	require.NoError(t, err)

	assert.Contains(t, md, "## Impression")
	assert.Contains(t, md, "Benign")
	assert.Contains(t, md, "| Left")
	assert.NotContains(t, md, "alert")
	assert.NotContains(t, md, "onclick")
}
