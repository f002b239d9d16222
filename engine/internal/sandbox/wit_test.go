package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/foofork/riptide/engine/models"
)

func TestUnpackPtrLenSplitsHighAndLowWords(t *testing.T) {
	ptr, length := unpackPtrLen(uint64(0x0000_1234_0000_5678))
	assert.Equal(t, uint32(0x1234), ptr)
	assert.Equal(t, uint32(0x5678), length)
}

func TestToGuestModeCarriesSelectorsOnlyForCustom(t *testing.T) {
	g := toGuestMode(models.ExtractionMode{Kind: models.ModeCustom, Selectors: []string{"h1"}})
	assert.Equal(t, "custom", g.Kind)
	assert.Equal(t, []string{"h1"}, g.Selectors)

	g = toGuestMode(models.ExtractionMode{Kind: models.ModeArticle})
	assert.Equal(t, "article", g.Kind)
	assert.Nil(t, g.Selectors)
}

func TestMapGuestContentDereferencesOptionalFields(t *testing.T) {
	title := "Hello"
	reading := 4
	words := 120
	quality := uint8(80)

	doc := mapGuestContent(guestExtractedContent{
		URL:         "https://example.com",
		Title:       &title,
		Markdown:    "# Hello",
		Text:        "Hello",
		ReadingTime: &reading,
		WordCount:   &words,
		QualityScore: &quality,
	})

	assert.Equal(t, "https://example.com", doc.URL)
	assert.Equal(t, "Hello", doc.Title)
	assert.Equal(t, "", doc.Byline)
	assert.Equal(t, 4, doc.ReadingTime)
	assert.Equal(t, &words, doc.WordCount)
	assert.Equal(t, &quality, doc.QualityScore)
}

func TestMapGuestContentZeroValueForMissingOptionals(t *testing.T) {
	doc := mapGuestContent(guestExtractedContent{URL: "https://example.com"})
	assert.Equal(t, "", doc.Title)
	assert.Equal(t, "", doc.Byline)
	assert.Equal(t, 0, doc.ReadingTime)
	assert.Nil(t, doc.WordCount)
}

func TestMapGuestErrorMapsKnownKinds(t *testing.T) {
	cases := map[string]models.ErrorKind{
		"invalid-html":    models.ErrKindParseError,
		"network-error":   models.ErrKindNetworkError,
		"parse-error":     models.ErrKindParseError,
		"resource-limit":  models.ErrKindResourceLimit,
		"extractor-error": models.ErrKindExtractorError,
		"unsupported-mode": models.ErrKindInvalidInput,
		"internal-error":  models.ErrKindInternalError,
		"something-else":  models.ErrKindInternalError,
	}
	for guestKind, wantKind := range cases {
		err := mapGuestError(guestExtractionError{Kind: guestKind, Message: "boom"})
		var extractErr *models.ExtractionError
		if !errors.As(err, &extractErr) {
			t.Fatalf("expected *models.ExtractionError for guest kind %q", guestKind)
		}
		assert.Equal(t, wantKind, extractErr.Kind, "guest kind %q", guestKind)
		assert.Equal(t, "boom", extractErr.Reason)
	}
}

func TestClassifyFaultNilIsNil(t *testing.T) {
	assert.Nil(t, classifyFault(nil, nil))
}

func TestClassifyFaultDeadlineExceededIsResourceLimit(t *testing.T) {
	err := classifyFault(context.DeadlineExceeded, nil)
	var extractErr *models.ExtractionError
	assert.True(t, errors.As(err, &extractErr))
	assert.Equal(t, models.ErrKindResourceLimit, extractErr.Kind)
}

func TestClassifyFaultWithGrowFailuresIsResourceLimit(t *testing.T) {
	tracker := NewResourceTracker(10, 10)
	tracker.TryGrowMemory(0, 100)

	err := classifyFault(errors.New("trap"), tracker)
	var extractErr *models.ExtractionError
	assert.True(t, errors.As(err, &extractErr))
	assert.Equal(t, models.ErrKindResourceLimit, extractErr.Kind)
}

func TestClassifyFaultWithoutGrowFailuresIsInternalError(t *testing.T) {
	tracker := NewResourceTracker(10, 10)
	err := classifyFault(errors.New("trap"), tracker)
	var extractErr *models.ExtractionError
	assert.True(t, errors.As(err, &extractErr))
	assert.Equal(t, models.ErrKindInternalError, extractErr.Kind)
}
