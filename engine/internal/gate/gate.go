// Package gate implements the Gate Decision Engine (C4): a scoring
// function over cheap, sampled HTML signals that selects among raw,
// probes-first, headless, or PDF processing paths.
//
// The weighted-signal scoring table is grounded on the confidence
// scoring shape in the teacher's ContentValidator
// (internal/processor/processor.go), generalized from a post-hoc quality
// score into a pre-extraction routing score, sampled via
// golang.org/x/net/html.Tokenizer rather than goquery's full DOM so the
// gate never parses more than it scores (spec §4.4: "the gate does not
// parse fully").
package gate

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"

	"github.com/foofork/riptide/engine/models"
)

// Thresholds configures the gate's decision boundaries (spec §4.4,
// DESIGN.md Open Question 2 for the chosen defaults).
type Thresholds struct {
	Hi                float64
	Lo                float64
	MinProbeTextChars int
}

// DefaultThresholds returns the values resolved in DESIGN.md's Open
// Questions section.
func DefaultThresholds() Thresholds {
	return Thresholds{Hi: 0.60, Lo: 0.30, MinProbeTextChars: 300}
}

const pdfContentType = "application/pdf"

// Sample derives GateFeatures from a fetched page's body without a full
// DOM parse: a single streaming pass over the HTML tokenizer, counting
// signals as they're seen.
func Sample(body []byte, contentType string) models.GateFeatures {
	f := models.GateFeatures{ByteSize: len(body)}
	if strings.Contains(contentType, pdfContentType) {
		return f
	}

	z := html.NewTokenizer(bytes.NewReader(body))
	var textBytes, totalBytes int
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.TextToken:
			t := z.Text()
			textBytes += len(t)
			totalBytes += len(t)
			content := string(t)
			if strings.Contains(content, "__INITIAL_STATE__") ||
				strings.Contains(content, "__NEXT_DATA__") ||
				strings.Contains(content, "__NUXT__") {
				f.HasSPAMarkers = true
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			totalBytes += len(tag)
			switch tag {
			case "article":
				f.HasArticleTag = true
			case "main":
				f.HasMainLandmark = true
			case "iframe":
				f.IframeCount++
			}
			if hasAttr {
				scanAttrs(z, &f, tag)
			}
		}
	}
	if totalBytes > 0 {
		f.TextToHTMLRatio = float64(textBytes) / float64(totalBytes)
	}
	return f
}

func scanAttrs(z *html.Tokenizer, f *models.GateFeatures, tag string) {
	for {
		key, val, more := z.TagAttr()
		k, v := string(key), string(val)
		switch {
		case tag == "div" || tag == "section":
			if k == "role" && v == "main" {
				f.HasMainLandmark = true
			}
			if k == "itemtype" && strings.Contains(v, "schema.org/Article") {
				f.HasSchemaArticle = true
			}
			if k == "class" && (strings.Contains(v, "ad-") || strings.Contains(v, "promo") || strings.Contains(v, "advert")) {
				f.AdMarkerCount++
			}
		case tag == "meta":
			if k == "name" && v == "description" {
				f.HasMetaDescription = true
			}
			if k == "property" && v == "og:description" {
				f.HasMetaDescription = true
			}
		case tag == "script" || tag == "link":
			if k == "itemtype" && strings.Contains(v, "schema.org/Article") {
				f.HasSchemaArticle = true
			}
		}
		if !more {
			return
		}
	}
}

// Score computes the weighted signal sum from spec §4.4, clamped to
// [0,1]. Deterministic for identical input (spec §8 invariant).
func Score(f models.GateFeatures) float64 {
	s := 0.0
	if f.HasArticleTag {
		s += 0.20
	}
	if f.HasSchemaArticle {
		s += 0.15
	}
	if f.HasMainLandmark {
		s += 0.15
	}
	if f.TextToHTMLRatio > 0.30 {
		s += 0.10
	}
	if f.HasMetaDescription {
		s += 0.05
	}
	if f.ByteSize > 5000 {
		s += 0.05
	}
	if f.IframeCount > 3 {
		s -= 0.10
	}
	if f.AdMarkerCount > 5 {
		s -= 0.15
	}
	if f.HasSPAMarkers {
		s -= 0.20
	}
	if s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}
	return s
}

// Decide applies spec §4.4's decision tree. PDF is dispatched on
// content-type alone, ahead of scoring.
func Decide(contentType string, f models.GateFeatures, t Thresholds) models.GateDecision {
	if strings.Contains(contentType, pdfContentType) {
		return models.GateDecision{Kind: models.DecisionPdfPath, Score: 1.0, Reason: "content_type=application/pdf"}
	}
	score := Score(f)
	switch {
	case score >= t.Hi:
		return models.GateDecision{Kind: models.DecisionRaw, Score: score, Reason: "score_ge_hi"}
	case score <= t.Lo:
		return models.GateDecision{Kind: models.DecisionHeadless, Score: score, Reason: "score_le_lo"}
	default:
		return models.GateDecision{Kind: models.DecisionProbesFirst, Score: score, Reason: "score_between_thresholds"}
	}
}
