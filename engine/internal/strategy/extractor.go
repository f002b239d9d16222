// Package strategy implements the Strategy Composer (C5): pluggable
// content extractors sharing a common capability set, combined under
// Chain, Parallel, or Fallback composition modes with confidence-based
// merging.
//
// The capability-set-not-inheritance shape follows spec §9's design
// note; the individual extractors are grounded on the teacher's
// strategies.go (composition vocabulary) and processor.go (CSS
// selection, metadata extraction, markdown conversion, quality scoring).
package strategy

import (
	"context"

	"github.com/foofork/riptide/engine/models"
)

// Extractor is the capability set every extraction strategy implements
// (spec §4.5: "polymorphic over {extract, confidence_score, name}").
type Extractor interface {
	Name() string
	Extract(ctx context.Context, html, url string) (models.ExtractedDoc, error)
	Confidence(doc models.ExtractedDoc, html string) float64
}
