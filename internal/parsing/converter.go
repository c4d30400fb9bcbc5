package parsing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

const maxConverted = 32 << 20

var (
	sanitizer = sync.OnceValue(bluemonday.UGCPolicy)

	markdown = sync.OnceValue(func() *converter.Converter {
		return converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		)
	})

	blankRuns = regexp.MustCompile(`\n{3,}`)
)

// Converter turns binary reports into XHTML.
type Converter interface {
	Convert(ctx context.Context, data []byte, contentType string) (string, error)
}

// Tika is a Converter backed by an Apache Tika server.
type Tika struct {
	url    string
	client *http.Client
}

// NewTika creates a Tika converter rooted at url.
func NewTika(url string, client *http.Client) *Tika {
	if client == nil {
		client = &http.Client{}
	}
	return &Tika{url: strings.TrimRight(url, "/"), client: client}
}

func (t *Tika) Convert(ctx context.Context, data []byte, contentType string) (string, error) {
	if t.url == "" {
		return "", fmt.Errorf("no converter configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.url+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build converter request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call converter: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxConverted))
	if err != nil {
		return "", fmt.Errorf("read converter response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("converter returned %d: %s", resp.StatusCode, bytes.TrimSpace(body[:min(len(body), 256)]))
	}
	return string(body), nil
}

// Markdown sanitizes html and converts it to Markdown.
func Markdown(html string) (string, error) {
	clean := sanitizer().Sanitize(html)
	md, err := markdown().ConvertString(clean)
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	return normalize(md), nil
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
