package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foofork/riptide/engine/models"
)

type fakeExtractor struct {
	name       string
	doc        models.ExtractedDoc
	err        error
	confidence float64
}

func (f fakeExtractor) Name() string { return f.name }
func (f fakeExtractor) Extract(ctx context.Context, html, url string) (models.ExtractedDoc, error) {
	return f.doc, f.err
}
func (f fakeExtractor) Confidence(doc models.ExtractedDoc, html string) float64 { return f.confidence }

func TestChainReturnsFirstMeetingThreshold(t *testing.T) {
	low := fakeExtractor{name: "low", doc: models.ExtractedDoc{Title: "low"}, confidence: 0.2}
	high := fakeExtractor{name: "high", doc: models.ExtractedDoc{Title: "high"}, confidence: 0.9}
	c := Chain{Extractors: []Extractor{low, high}, Threshold: 0.5}

	doc, err := c.Extract(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "high", doc.Title)
}

func TestChainSkipsFailingExtractors(t *testing.T) {
	failing := fakeExtractor{name: "failing", err: errors.New("boom")}
	good := fakeExtractor{name: "good", doc: models.ExtractedDoc{Title: "good"}, confidence: 0.9}
	c := Chain{Extractors: []Extractor{failing, good}, Threshold: 0.5}

	doc, err := c.Extract(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "good", doc.Title)
}

func TestChainErrorsWhenNoneMeetThreshold(t *testing.T) {
	low := fakeExtractor{name: "low", doc: models.ExtractedDoc{Title: "low"}, confidence: 0.1}
	c := Chain{Extractors: []Extractor{low}, Threshold: 0.5}

	_, err := c.Extract(context.Background(), "", "")
	require.Error(t, err)
}

func TestParallelMergesHighestConfidencePerField(t *testing.T) {
	titleWinner := fakeExtractor{name: "a", doc: models.ExtractedDoc{Title: "best title", Byline: "weak byline"}, confidence: 0.9}
	bylineWinner := fakeExtractor{name: "b", doc: models.ExtractedDoc{Title: "weak title", Byline: "best byline"}, confidence: 0.95}
	p := Parallel{Extractors: []Extractor{titleWinner, bylineWinner}}

	doc, err := p.Extract(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "weak title", doc.Title, "bylineWinner has higher confidence, wins title too")
	assert.Equal(t, "best byline", doc.Byline)
}

func TestParallelErrorsWhenAllFail(t *testing.T) {
	p := Parallel{Extractors: []Extractor{fakeExtractor{name: "a", err: errors.New("x")}}}
	_, err := p.Extract(context.Background(), "", "")
	require.Error(t, err)
}

func TestFallbackTriesPrimaryThenFallbacks(t *testing.T) {
	primary := fakeExtractor{name: "primary", err: errors.New("unavailable")}
	fb := fakeExtractor{name: "fb", doc: models.ExtractedDoc{Title: "from fallback"}, confidence: 0.9}
	f := Fallback{Primary: primary, Fallbacks: []Extractor{fb}, Threshold: 0.5}

	doc, err := f.Extract(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "from fallback", doc.Title)
}

func TestFallbackSatisfiesExtractorInterface(t *testing.T) {
	var _ Extractor = Fallback{}
	var _ Extractor = Chain{}
	var _ Extractor = Parallel{}
}
