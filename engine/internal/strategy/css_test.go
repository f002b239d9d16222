package strategy

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleArticleHTML = `<html><head>
<title>Fallback Title</title>
<meta property="og:title" content="The Real Title">
<meta name="description" content="A short description of the article.">
<meta name="author" content="Jane Doe">
</head><body>
<nav>site nav links here</nav>
<article>
<h1>The Real Title</h1>
<p>This is the first paragraph of a long article with plenty of real body text to extract and convert into clean markdown output for downstream consumers of the pipeline.</p>
<p>Second paragraph continues with more substantive content, including a <a href="https://example.com/ref">reference link</a> and an image.</p>
<img src="https://example.com/photo.jpg">
</article>
<footer>copyright footer</footer>
</body></html>`

func TestCSSExtractorExtractsTitleByAndDescription(t *testing.T) {
	e := NewCSSExtractor()
	doc, err := e.Extract(context.Background(), sampleArticleHTML, "https://example.com/a")
	require.NoError(t, err)

	assert.Equal(t, "The Real Title", doc.Title)
	assert.Equal(t, "Jane Doe", doc.Byline)
	assert.Equal(t, "A short description of the article.", doc.Description)
	assert.Contains(t, doc.Text, "first paragraph")
	assert.NotContains(t, doc.Text, "site nav links here")
	assert.Contains(t, doc.Links, "https://example.com/ref")
	assert.Contains(t, doc.Media, "https://example.com/photo.jpg")
	require.NotNil(t, doc.QualityScore)
}

func TestCSSExtractorNameIsCSS(t *testing.T) {
	assert.Equal(t, "css", NewCSSExtractor().Name())
}

func TestCSSConfidenceHigherForArticleMarkup(t *testing.T) {
	withArticle := `<html><body><article>` + strings.Repeat("text ", 200) + `</article></body></html>`
	withoutArticle := `<html><body><div id="root"></div><script>__NEXT_DATA__</script></body></html>`

	c1 := cssConfidence(withArticle)
	c2 := cssConfidence(withoutArticle)
	assert.Greater(t, c1, c2)
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 3, wordCount("one two three"))
	assert.Equal(t, 0, wordCount("   "))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
