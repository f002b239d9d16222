package strategy

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/foofork/riptide/engine/models"
)

var (
	jsonLDRE   = regexp.MustCompile(`(?s)<script[^>]+type=["']application/ld\+json["'][^>]*>(.*?)</script>`)
	timeTagRE  = regexp.MustCompile(`(?s)<time[^>]+datetime=["']([^"']+)["']`)
	titleTagRE = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
)

// RegexExtractor pulls narrow structured data (JSON-LD, <time datetime>)
// without a DOM parse, for pages where a CSS/WASM pass is unnecessary or
// unavailable (spec §4.5 "Regex extractor for narrow structured data").
type RegexExtractor struct{}

func NewRegexExtractor() *RegexExtractor { return &RegexExtractor{} }

func (e *RegexExtractor) Name() string { return "regex" }

func (e *RegexExtractor) Extract(ctx context.Context, html, url string) (models.ExtractedDoc, error) {
	out := models.ExtractedDoc{URL: url}

	if m := timeTagRE.FindStringSubmatch(html); len(m) == 2 {
		out.PublishedISO = m[1]
	}
	for _, m := range jsonLDRE.FindAllStringSubmatch(html, -1) {
		var ld map[string]any
		if err := json.Unmarshal([]byte(m[1]), &ld); err != nil {
			continue
		}
		applyJSONLD(&out, ld)
	}
	if out.Title == "" {
		if m := titleTagRE.FindStringSubmatch(html); len(m) == 2 {
			out.Title = strings.TrimSpace(m[1])
		}
	}
	if out.Title == "" {
		return out, models.NewExtractionError(models.ErrKindParseError, "regex: no structured data found")
	}
	return out, nil
}

func applyJSONLD(out *models.ExtractedDoc, ld map[string]any) {
	if headline, ok := ld["headline"].(string); ok && out.Title == "" {
		out.Title = headline
	}
	if datePublished, ok := ld["datePublished"].(string); ok && out.PublishedISO == "" {
		out.PublishedISO = datePublished
	}
	if author, ok := ld["author"].(map[string]any); ok {
		if name, ok := author["name"].(string); ok && out.Byline == "" {
			out.Byline = name
		}
	}
	if desc, ok := ld["description"].(string); ok && out.Description == "" {
		out.Description = desc
	}
}

func (e *RegexExtractor) Confidence(doc models.ExtractedDoc, html string) float64 {
	if doc.Title == "" {
		return 0
	}
	s := 0.3
	if doc.PublishedISO != "" {
		s += 0.2
	}
	if doc.Byline != "" {
		s += 0.1
	}
	if doc.Description != "" {
		s += 0.1
	}
	return clamp01(s)
}
