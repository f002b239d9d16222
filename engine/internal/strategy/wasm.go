package strategy

import (
	"context"

	"github.com/foofork/riptide/engine/internal/pool"
	"github.com/foofork/riptide/engine/models"
)

// WASMExtractor is the primary extractor, backed by a pooled sandbox
// instance (spec §4.5: "WASM extractor (primary when available)").
type WASMExtractor struct {
	pool *pool.Pool
	mode models.ExtractionMode
}

func NewWASMExtractor(p *pool.Pool, mode models.ExtractionMode) *WASMExtractor {
	return &WASMExtractor{pool: p, mode: mode}
}

func (e *WASMExtractor) Name() string { return "wasm" }

func (e *WASMExtractor) Extract(ctx context.Context, html, url string) (models.ExtractedDoc, error) {
	lease, err := e.pool.Acquire(ctx)
	if err != nil {
		return models.ExtractedDoc{}, err
	}
	doc, err := lease.Instance().Extract(ctx, html, url, e.mode)
	lease.Release(err)
	return doc, err
}

func (e *WASMExtractor) Confidence(doc models.ExtractedDoc, html string) float64 {
	if doc.QualityScore != nil {
		return float64(*doc.QualityScore) / 100.0
	}
	if doc.Title != "" && doc.Text != "" {
		return 0.8
	}
	return 0.5
}
