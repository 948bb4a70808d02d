// Package render turns project markdown into HTML for the detail pages.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Renderer converts markdown to HTML. Raw HTML in the source is dropped.
type Renderer struct {
	md           goldmark.Markdown
	uploadPrefix string
}

// New returns a GitHub-flavoured renderer that resolves bare image paths
// under uploadPrefix.
func New(uploadPrefix string) *Renderer {
	if !strings.HasSuffix(uploadPrefix, "/") {
		uploadPrefix += "/"
	}
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
		uploadPrefix: uploadPrefix,
	}
}

// Markdown renders src and rewrites local image references.
func (r *Renderer) Markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		return "", fmt.Errorf("parse rendered html: %w", err)
	}
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && isLocal(src) {
			s.SetAttr("src", r.uploadPrefix+strings.TrimPrefix(src, "./"))
		}
		s.SetAttr("loading", "lazy")
	})
	doc.Find("a[href^='http://'], a[href^='https://']").Each(func(_ int, s *goquery.Selection) {
		s.SetAttr("rel", "noopener noreferrer")
		s.SetAttr("target", "_blank")
	})

	html, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("serialize html: %w", err)
	}
	return html, nil
}

// isLocal reports whether src names a file relative to the upload directory.
func isLocal(src string) bool {
	switch {
	case src == "",
		strings.HasPrefix(src, "http://"),
		strings.HasPrefix(src, "https://"),
		strings.HasPrefix(src, "/"),
		strings.HasPrefix(src, "data:"):
		return false
	}
	return true
}
