package strategy

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/foofork/riptide/engine/models"
)

// Chain tries extractors in order, returning the first whose confidence
// meets Threshold (spec §4.5).
type Chain struct {
	Extractors []Extractor
	Threshold  float64
}

func (c Chain) Name() string { return "chain" }

// Confidence reports the confidence of whichever extractor Extract
// would currently select, so a Chain can itself be composed as an
// Extractor (spec §4.5: composition modes are themselves Extractors).
func (c Chain) Confidence(doc models.ExtractedDoc, html string) float64 {
	for _, ex := range c.Extractors {
		if conf := ex.Confidence(doc, html); conf >= c.Threshold {
			return conf
		}
	}
	return 0
}

func (c Chain) Extract(ctx context.Context, html, url string) (models.ExtractedDoc, error) {
	var lastErr error
	for _, ex := range c.Extractors {
		doc, err := ex.Extract(ctx, html, url)
		if err != nil {
			lastErr = err
			continue
		}
		if ex.Confidence(doc, html) >= c.Threshold {
			return doc, nil
		}
		lastErr = models.NewExtractionError(models.ErrKindParseError, "confidence below threshold")
	}
	if lastErr == nil {
		lastErr = models.NewExtractionError(models.ErrKindParseError, "no extractor in chain produced a result")
	}
	return models.ExtractedDoc{}, lastErr
}

// Parallel runs all extractors with bounded concurrency (via
// golang.org/x/sync/errgroup) and merges their results by union of
// fields, preferring the highest-confidence value per field (spec
// §4.5 merging rules).
type Parallel struct {
	Extractors  []Extractor
	Concurrency int
}

func (p Parallel) Name() string { return "parallel" }

// Confidence runs the merge-eligible extractors' own confidence scoring
// and reports the best one, mirroring what Extract would keep for the
// content field.
func (p Parallel) Confidence(doc models.ExtractedDoc, html string) float64 {
	best := 0.0
	for _, ex := range p.Extractors {
		if conf := ex.Confidence(doc, html); conf > best {
			best = conf
		}
	}
	return best
}

type parallelResult struct {
	doc        models.ExtractedDoc
	confidence float64
	ok         bool
}

func (p Parallel) Extract(ctx context.Context, html, url string) (models.ExtractedDoc, error) {
	results := make([]parallelResult, len(p.Extractors))
	g, gctx := errgroup.WithContext(ctx)
	if p.Concurrency > 0 {
		g.SetLimit(p.Concurrency)
	}
	for i, ex := range p.Extractors {
		i, ex := i, ex
		g.Go(func() error {
			doc, err := ex.Extract(gctx, html, url)
			if err != nil {
				return nil // a single extractor's failure doesn't fail the group
			}
			results[i] = parallelResult{doc: doc, confidence: ex.Confidence(doc, html), ok: true}
			return nil
		})
	}
	_ = g.Wait()

	merged, any := mergeByConfidence(results)
	if !any {
		return models.ExtractedDoc{}, models.NewExtractionError(models.ErrKindParseError, "parallel: no extractor succeeded")
	}
	return merged, nil
}

func mergeByConfidence(results []parallelResult) (models.ExtractedDoc, bool) {
	var out models.ExtractedDoc
	bestTitle, bestByline, bestDesc, bestContent := -1.0, -1.0, -1.0, -1.0
	any := false
	for _, r := range results {
		if !r.ok {
			continue
		}
		any = true
		if out.URL == "" {
			out.URL = r.doc.URL
		}
		if r.doc.Title != "" && r.confidence > bestTitle {
			out.Title = r.doc.Title
			bestTitle = r.confidence
		}
		if r.doc.Byline != "" && r.confidence > bestByline {
			out.Byline = r.doc.Byline
			bestByline = r.confidence
		}
		if r.doc.Description != "" && r.confidence > bestDesc {
			out.Description = r.doc.Description
			bestDesc = r.confidence
		}
		if len(r.doc.Text) > 0 && r.confidence > bestContent {
			out.Text = r.doc.Text
			out.Markdown = r.doc.Markdown
			out.WordCount = r.doc.WordCount
			out.QualityScore = r.doc.QualityScore
			bestContent = r.confidence
		}
		out.Links = append(out.Links, r.doc.Links...)
		out.Media = append(out.Media, r.doc.Media...)
		out.Categories = append(out.Categories, r.doc.Categories...)
		if r.doc.PublishedISO != "" && out.PublishedISO == "" {
			out.PublishedISO = r.doc.PublishedISO
		}
		if r.doc.SiteName != "" && out.SiteName == "" {
			out.SiteName = r.doc.SiteName
		}
	}
	return out, any
}

// Fallback runs Primary, then Fallbacks in order, if the prior attempt
// failed or scored below Threshold (spec §4.5).
type Fallback struct {
	Primary   Extractor
	Fallbacks []Extractor
	Threshold float64
}

func (f Fallback) Name() string { return "fallback" }

func (f Fallback) asChain() Chain {
	return Chain{Extractors: append([]Extractor{f.Primary}, f.Fallbacks...), Threshold: f.Threshold}
}

func (f Fallback) Extract(ctx context.Context, html, url string) (models.ExtractedDoc, error) {
	return f.asChain().Extract(ctx, html, url)
}

func (f Fallback) Confidence(doc models.ExtractedDoc, html string) float64 {
	return f.asChain().Confidence(doc, html)
}
