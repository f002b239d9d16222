package strategy

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/foofork/riptide/engine/internal/markdown"
	"github.com/foofork/riptide/engine/models"
)

// densityCandidates mirrors the merging-rule candidate set from spec
// §4.5 for the density fallback extractor.
var densityCandidates = []string{
	"article", "main", "[role=main]", ".article-content", ".post-content", "div.content", "div",
}

// DensityExtractor is the CETD-like text-density fallback: score each
// candidate block by text_length / (tag_count + 1), penalized by link
// density, and keep the highest-scoring block with text length > 200
// (spec §4.5).
type DensityExtractor struct{}

func NewDensityExtractor() *DensityExtractor { return &DensityExtractor{} }

func (e *DensityExtractor) Name() string { return "density" }

func (e *DensityExtractor) Extract(ctx context.Context, html, url string) (models.ExtractedDoc, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.ExtractedDoc{}, models.WrapExtractionError(models.ErrKindParseError, "density: parse html", err)
	}

	var best *goquery.Selection
	bestScore := -1.0
	for _, sel := range densityCandidates {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) <= 200 {
				return
			}
			score := densityScore(s, text)
			if score > bestScore {
				bestScore = score
				best = s
			}
		})
	}
	if best == nil {
		return models.ExtractedDoc{}, models.NewExtractionError(models.ErrKindParseError, "density: no candidate block found")
	}

	text := strings.TrimSpace(best.Text())
	contentHTML, _ := best.Html()
	md, _ := markdown.Convert(contentHTML)

	title := strings.TrimSpace(doc.Find("title").First().Text())
	wc := wordCount(text)
	out := models.ExtractedDoc{
		URL:       url,
		Title:     title,
		Markdown:  md,
		Text:      text,
		WordCount: &wc,
	}
	score := qualityScore(out, html)
	out.QualityScore = &score
	return out, nil
}

func densityScore(s *goquery.Selection, text string) float64 {
	tagCount := s.Find("*").Length()
	base := float64(len(text)) / float64(tagCount+1)

	linkText := 0
	s.Find("a").Each(func(_ int, a *goquery.Selection) {
		linkText += len(strings.TrimSpace(a.Text()))
	})
	linkDensity := 0.0
	if len(text) > 0 {
		linkDensity = float64(linkText) / float64(len(text))
	}
	return base * (1 - linkDensity)
}

func (e *DensityExtractor) Confidence(doc models.ExtractedDoc, html string) float64 {
	wc := 0
	if doc.WordCount != nil {
		wc = *doc.WordCount
	}
	if wc == 0 {
		return 0
	}
	// Density is a fallback: its confidence runs from 0.3 to 0.6 with word
	// count (saturating at 500 words), so it passes CSS's 0.5 starting
	// score only for longer texts.
	s := 0.3 + clamp01(float64(wc)/500.0)*0.3
	return clamp01(s)
}
