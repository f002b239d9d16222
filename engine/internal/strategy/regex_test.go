package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foofork/riptide/engine/models"
)

const jsonLDHTML = `<html><head><title>Fallback Title</title>
<script type="application/ld+json">
{"headline":"JSON-LD Headline","datePublished":"2026-01-15T10:00:00Z","author":{"name":"Jane Doe"},"description":"a JSON-LD description"}
</script>
<time datetime="2026-01-15T10:00:00Z">Jan 15</time>
</head><body></body></html>`

func TestRegexExtractorPullsJSONLD(t *testing.T) {
	e := NewRegexExtractor()
	doc, err := e.Extract(context.Background(), jsonLDHTML, "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "JSON-LD Headline", doc.Title)
	assert.Equal(t, "2026-01-15T10:00:00Z", doc.PublishedISO)
	assert.Equal(t, "Jane Doe", doc.Byline)
	assert.Equal(t, "a JSON-LD description", doc.Description)
}

func TestRegexExtractorFallsBackToTitleTag(t *testing.T) {
	e := NewRegexExtractor()
	doc, err := e.Extract(context.Background(), `<html><head><title>Only A Title</title></head></html>`, "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "Only A Title", doc.Title)
}

func TestRegexExtractorErrorsWithoutAnyStructuredData(t *testing.T) {
	e := NewRegexExtractor()
	_, err := e.Extract(context.Background(), `<html><body><p>nothing structured</p></body></html>`, "https://example.com/a")
	require.Error(t, err)
	var extractErr *models.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, models.ErrKindParseError, extractErr.Kind)
}

func TestRegexConfidenceScalesWithFieldsFound(t *testing.T) {
	e := NewRegexExtractor()
	bare := e.Confidence(models.ExtractedDoc{Title: "t"}, "")
	rich := e.Confidence(models.ExtractedDoc{Title: "t", PublishedISO: "x", Byline: "y", Description: "z"}, "")
	assert.Less(t, bare, rich)
}
