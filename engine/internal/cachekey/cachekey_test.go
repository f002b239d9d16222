package cachekey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foofork/riptide/engine/models"
)

func TestCanonicalizeLowercasesHostAndStripsFragment(t *testing.T) {
	got, err := Canonicalize("HTTPS://Example.COM/Path#section")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/Path", got)
}

func TestCanonicalizeSortsQueryParams(t *testing.T) {
	a, err := Canonicalize("https://example.com/p?b=2&a=1")
	require.NoError(t, err)
	b, err := Canonicalize("https://example.com/p?a=1&b=2")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFingerprintIsDeterministic(t *testing.T) {
	mode := models.ExtractionMode{Kind: models.ModeArticle}
	k1, err := Fingerprint("https://example.com/a?x=1", mode, "markdown", "v1")
	require.NoError(t, err)
	k2, err := Fingerprint("https://example.com/a?x=1", mode, "markdown", "v1")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestFingerprintDiffersByMode(t *testing.T) {
	article, err := Fingerprint("https://example.com/a", models.ExtractionMode{Kind: models.ModeArticle}, "markdown", "v1")
	require.NoError(t, err)
	full, err := Fingerprint("https://example.com/a", models.ExtractionMode{Kind: models.ModeFull}, "markdown", "v1")
	require.NoError(t, err)
	assert.NotEqual(t, article, full)
}

func TestFingerprintDiffersByExtractorVersion(t *testing.T) {
	mode := models.ExtractionMode{Kind: models.ModeArticle}
	v1, err := Fingerprint("https://example.com/a", mode, "markdown", "v1")
	require.NoError(t, err)
	v2, err := Fingerprint("https://example.com/a", mode, "markdown", "v2")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
}
