// Package convert normalizes downloaded filing documents into PDF files.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// pdfMagic is the signature every PDF document starts with.
var pdfMagic = []byte("%PDF")

// Placeholder is rendered when a markup document yields no readable text.
const Placeholder = "Document downloaded but no readable text was extracted."

// Renderer turns a non-PDF document into PDF bytes.
type Renderer interface {
	Render(ctx context.Context, raw []byte) ([]byte, error)
}

// Normalizer writes documents to disk as PDF.
type Normalizer struct {
	renderer Renderer
}

// NewNormalizer returns a Normalizer that uses renderer for non-PDF input.
// A nil renderer selects the TextRenderer.
func NewNormalizer(renderer Renderer) *Normalizer {
	if renderer == nil {
		renderer = TextRenderer{}
	}
	return &Normalizer{renderer: renderer}
}

// IsPDF reports whether raw already carries the PDF signature.
func IsPDF(raw []byte) bool {
	return bytes.HasPrefix(raw, pdfMagic)
}

// Normalize writes raw to path as a PDF. PDF input is copied unchanged;
// anything else goes through the renderer.
func (n *Normalizer) Normalize(ctx context.Context, raw []byte, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	out := raw
	if !IsPDF(raw) {
		rendered, err := n.renderer.Render(ctx, raw)
		if err != nil {
			return fmt.Errorf("render %s: %w", filepath.Base(path), err)
		}
		out = rendered
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
