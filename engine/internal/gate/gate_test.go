package gate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/foofork/riptide/engine/models"
)

func articleHTML(paddingParagraphs int) string {
	var b strings.Builder
	b.WriteString(`<html><head><meta name="description" content="a piece about things"></head><body><article><h1>Title</h1>`)
	for i := 0; i < paddingParagraphs; i++ {
		b.WriteString("<p>Lorem ipsum dolor sit amet, consectetur adipiscing elit, a real paragraph of body text.</p>")
	}
	b.WriteString(`</article></body></html>`)
	return b.String()
}

func spaHTML() string {
	return `<html><body><div id="root"></div><script>window.__NEXT_DATA__={}</script></body></html>`
}

func TestSampleDetectsArticleTag(t *testing.T) {
	f := Sample([]byte(articleHTML(20)), "text/html")
	assert.True(t, f.HasArticleTag)
	assert.True(t, f.HasMetaDescription)
	assert.Greater(t, f.TextToHTMLRatio, 0.0)
}

func TestSampleDetectsSPAMarkers(t *testing.T) {
	f := Sample([]byte(spaHTML()), "text/html")
	assert.True(t, f.HasSPAMarkers)
	assert.False(t, f.HasArticleTag)
}

func TestSamplePDFShortCircuits(t *testing.T) {
	f := Sample([]byte("%PDF-1.4 garbage"), "application/pdf")
	assert.Equal(t, models.GateFeatures{ByteSize: len("%PDF-1.4 garbage")}, f)
}

func TestScoreIsClampedAndDeterministic(t *testing.T) {
	f := models.GateFeatures{
		HasArticleTag:    true,
		HasSchemaArticle: true,
		HasMainLandmark:  true,
		TextToHTMLRatio:  0.5,
		HasMetaDescription: true,
		ByteSize:         10000,
	}
	s1 := Score(f)
	s2 := Score(f)
	assert.Equal(t, s1, s2)
	assert.LessOrEqual(t, s1, 1.0)
	assert.GreaterOrEqual(t, s1, 0.0)
}

func TestScoreNegativeSignalsClampToZero(t *testing.T) {
	f := models.GateFeatures{HasSPAMarkers: true, IframeCount: 10, AdMarkerCount: 20}
	assert.Equal(t, 0.0, Score(f))
}

func TestDecidePDFPathOverridesScore(t *testing.T) {
	d := Decide("application/pdf", models.GateFeatures{}, DefaultThresholds())
	assert.Equal(t, models.DecisionPdfPath, d.Kind)
}

func TestDecideHighScoreSelectsRaw(t *testing.T) {
	// Every positive signal set: score 0.70, above the default Hi of 0.60.
	f := models.GateFeatures{
		HasArticleTag:      true,
		HasSchemaArticle:   true,
		HasMainLandmark:    true,
		TextToHTMLRatio:    0.5,
		HasMetaDescription: true,
		ByteSize:           10000,
	}
	d := Decide("text/html", f, DefaultThresholds())
	assert.Equal(t, models.DecisionRaw, d.Kind)
}

func TestDecideLowScoreSelectsHeadless(t *testing.T) {
	f := Sample([]byte(spaHTML()), "text/html")
	d := Decide("text/html", f, DefaultThresholds())
	assert.Equal(t, models.DecisionHeadless, d.Kind)
}

func TestDecideMidScoreSelectsProbesFirst(t *testing.T) {
	t2 := Thresholds{Hi: 0.99, Lo: 0.01, MinProbeTextChars: 300}
	f := Sample([]byte(articleHTML(1)), "text/html")
	d := Decide("text/html", f, t2)
	assert.Equal(t, models.DecisionProbesFirst, d.Kind)
}
