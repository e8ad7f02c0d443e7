package pipeline

import (
	"context"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"

	"github.com/Aman-CERP/docindex/internal/store"
)

// excludedSelectors are stripped from a fetched HTML page before it is
// converted to Markdown: chrome that carries no documentation content
// (§4.3.1 Prose pipeline).
var excludedSelectors = []string{
	"nav", "footer", "script", "style", "header",
	".sidebar", ".toc", ".navigation", ".breadcrumbs", ".ads", "[aria-hidden=\"true\"]",
}

// ProsePipeline sanitizes fetched HTML into Markdown and delegates
// heading-scoped chunking to MarkdownChunker. Plain Markdown/text sources
// skip sanitization and go straight to the chunker.
type ProsePipeline struct {
	markdown *MarkdownChunker
}

// NewProsePipeline constructs a prose pipeline with default chunk sizing.
func NewProsePipeline() *ProsePipeline {
	return &ProsePipeline{markdown: NewMarkdownChunker()}
}

// NewProsePipelineWithOptions constructs a prose pipeline with custom chunk sizing.
func NewProsePipelineWithOptions(opts MarkdownChunkerOptions) *ProsePipeline {
	return &ProsePipeline{markdown: NewMarkdownChunkerWithOptions(opts)}
}

// Close releases chunker resources.
func (p *ProsePipeline) Close() { p.markdown.Close() }

// CanHandle reports whether mimeType is HTML, Markdown, or plain text.
func (p *ProsePipeline) CanHandle(mimeType string) bool {
	switch mimeType {
	case "text/html", "application/xhtml+xml":
		return true
	}
	return p.markdown.CanHandle(mimeType)
}

// Chunk sanitizes HTML (if present) to Markdown, then hands off to the
// heading-based markdown chunker.
func (p *ProsePipeline) Chunk(ctx context.Context, input *Input) (*store.ScrapeResult, error) {
	if input.MimeType != "text/html" && input.MimeType != "application/xhtml+xml" {
		return p.markdown.Chunk(ctx, input)
	}

	markdown, title, err := htmlToMarkdown(input.Content)
	if err != nil {
		return nil, err
	}

	mdInput := &Input{URL: input.URL, Path: input.Path, Content: []byte(markdown), MimeType: "text/markdown"}
	result, err := p.markdown.Chunk(ctx, mdInput)
	if err != nil {
		return nil, err
	}
	if title != "" {
		result.Title = title
	}
	return result, nil
}

// htmlToMarkdown strips non-content chrome from rawHTML and converts the
// remainder to Markdown, returning the page title if present.
func htmlToMarkdown(rawHTML []byte) (markdown string, title string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(rawHTML)))
	if err != nil {
		return "", "", err
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())

	for _, sel := range excludedSelectors {
		doc.Find(sel).Remove()
	}

	main := doc.Find("main").First()
	var htmlFragment string
	if main.Length() > 0 {
		htmlFragment, err = main.Html()
	} else {
		htmlFragment, err = doc.Find("body").Html()
	}
	if err != nil {
		return "", title, err
	}

	md, err := htmltomarkdown.ConvertString(htmlFragment)
	if err != nil {
		return "", title, err
	}
	return md, title, nil
}
