package convert

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-pdf/fpdf"
	"golang.org/x/net/html"
)

// Page geometry of the text renderer, in points.
const (
	pageMargin  = 40.0
	lineLeading = 14.0
	fontSize    = 10.0
	chunkRunes  = 110
)

// ExtractText returns the readable text of an HTML document, one text block
// per line. Script, style, and noscript content is dropped.
func ExtractText(raw []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				lines = append(lines, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.Join(lines, "\n"), nil
}

// TextRenderer extracts the text of a markup document and lays it out on
// Letter pages.
type TextRenderer struct{}

// Render implements Renderer.
func (TextRenderer) Render(_ context.Context, raw []byte) ([]byte, error) {
	text, err := ExtractText(raw)
	if err != nil {
		return nil, err
	}
	if text == "" {
		text = Placeholder
	}
	return RenderText(text)
}

// RenderText lays text out as a paginated PDF. Blank lines are skipped and
// long lines are split into fixed-width chunks.
func RenderText(text string) ([]byte, error) {
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, pageMargin)
	pdf.SetFont("Helvetica", "", fontSize)
	translate := pdf.UnicodeTranslatorFromDescriptor("")
	_, pageHeight := pdf.GetPageSize()

	pdf.AddPage()
	y := pageMargin
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		for _, chunk := range chunk(line, chunkRunes) {
			pdf.Text(pageMargin, y, translate(chunk))
			y += lineLeading
			if y > pageHeight-pageMargin {
				pdf.AddPage()
				y = pageMargin
			}
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func chunk(s string, size int) []string {
	runes := []rune(s)
	out := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
