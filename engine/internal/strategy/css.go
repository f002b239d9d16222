package strategy

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/foofork/riptide/engine/internal/markdown"
	"github.com/foofork/riptide/engine/models"
)

// boilerplateSelectors are removed before content extraction (spec §4.5).
var boilerplateSelectors = []string{
	"nav", "header", "footer", "aside", ".sidebar", ".ad", ".ads",
	".advertisement", ".comments", ".related", ".social-share", ".newsletter",
}

// contentSelectors are tried, most specific first, for the main content
// block.
var contentSelectors = []string{
	"article", "main", "[role=main]", ".article-content", ".post-content", "div.content",
}

// CSSExtractor extracts title/content/byline/date via a curated selector
// set, grounded on the teacher's ContentProcessor
// (ExtractContent/RemoveUnwantedElements/ExtractMetadata/ExtractImages).
type CSSExtractor struct{}

func NewCSSExtractor() *CSSExtractor { return &CSSExtractor{} }

func (e *CSSExtractor) Name() string { return "css" }

func (e *CSSExtractor) Extract(ctx context.Context, html, url string) (models.ExtractedDoc, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.ExtractedDoc{}, models.WrapExtractionError(models.ErrKindParseError, "css: parse html", err)
	}

	for _, sel := range boilerplateSelectors {
		doc.Find(sel).Remove()
	}

	title := firstNonEmpty(
		attrText(doc, `meta[property="og:title"]`, "content"),
		attrText(doc, `meta[itemprop="headline"]`, "content"),
		strings.TrimSpace(doc.Find("title").First().Text()),
		strings.TrimSpace(doc.Find("h1").First().Text()),
	)

	byline := firstNonEmpty(
		attrText(doc, `meta[name="author"]`, "content"),
		strings.TrimSpace(doc.Find("[rel=author]").First().Text()),
	)

	description := firstNonEmpty(
		attrText(doc, `meta[name="description"]`, "content"),
		attrText(doc, `meta[property="og:description"]`, "content"),
	)

	var contentSel *goquery.Selection
	for _, sel := range contentSelectors {
		s := doc.Find(sel)
		if s.Length() > 0 && len(strings.TrimSpace(s.Text())) > 200 {
			contentSel = s.First()
			break
		}
	}
	if contentSel == nil {
		contentSel = doc.Find("body")
	}

	contentHTML, _ := contentSel.Html()
	text := strings.TrimSpace(contentSel.Text())

	md := ""
	if contentHTML != "" {
		if converted, cerr := markdown.Convert(contentHTML); cerr == nil {
			md = converted
		}
	}

	var links []string
	contentSel.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			links = append(links, href)
		}
	})
	var media []string
	contentSel.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			media = append(media, src)
		}
	})

	wc := wordCount(text)
	out := models.ExtractedDoc{
		URL:         url,
		Title:       title,
		Byline:      byline,
		Markdown:    md,
		Text:        text,
		Links:       links,
		Media:       media,
		Description: description,
		WordCount:   &wc,
	}
	score := qualityScore(out, html)
	out.QualityScore = &score
	return out, nil
}

func (e *CSSExtractor) Confidence(doc models.ExtractedDoc, html string) float64 {
	return cssConfidence(html)
}

// cssConfidence implements the illustrative scoring table from spec §4.5.
func cssConfidence(html string) float64 {
	s := 0.5
	if strings.Contains(html, "<article") {
		s += 0.15
	}
	if strings.Contains(html, `role="main"`) || strings.Contains(html, `role=main`) {
		s += 0.1
	}
	if strings.Contains(html, "schema.org/Article") {
		s += 0.15
	}
	if strings.Contains(html, "<main") {
		s += 0.1
	}
	if strings.Contains(html, `name="description"`) {
		s += 0.05
	}
	textRatio := textToHTMLRatio(html)
	if textRatio > 0.3 {
		s += 0.1
	}
	if len(html) > 5*1024 {
		s += 0.05
	}
	if strings.Count(html, "<iframe") > 3 {
		s -= 0.1
	}
	if strings.Count(html, "ad-") > 5 {
		s -= 0.15
	}
	if strings.Contains(html, "__NEXT_DATA__") || strings.Contains(html, "__INITIAL_STATE__") || strings.Contains(html, "__NUXT__") {
		s -= 0.2
	}
	return clamp01(s)
}

func textToHTMLRatio(html string) float64 {
	if len(html) == 0 {
		return 0
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}
	textLen := len(doc.Text())
	return float64(textLen) / float64(len(html))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func attrText(doc *goquery.Document, sel, attr string) string {
	v, _ := doc.Find(sel).First().Attr(attr)
	return strings.TrimSpace(v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// qualityScore adapts the teacher's ContentValidator scoring into the
// spec's 0..100 ExtractedDoc.quality_score band.
func qualityScore(doc models.ExtractedDoc, html string) uint8 {
	score := 1.0
	if strings.TrimSpace(doc.Title) == "" {
		score -= 0.4
	} else if len(doc.Title) < 10 {
		score -= 0.2
	}
	wc := 0
	if doc.WordCount != nil {
		wc = *doc.WordCount
	}
	switch {
	case wc < 5:
		score -= 0.4
	case wc < 50:
		score -= 0.15
	}
	if !strings.Contains(html, "<h1") && !strings.Contains(html, "<h2") {
		score -= 0.1
	}
	if score < 0 {
		score = 0
	}
	return uint8(score * 100)
}
