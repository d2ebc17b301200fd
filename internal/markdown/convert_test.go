package markdown

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sitebrain/sitebrain/internal/core"
)

func TestToMarkdown_ConvertsStructure(t *testing.T) {
	t.Parallel()

	c := New()
	md, err := c.ToMarkdown("https://example.com/pricing", `<html><body>
<h1>Pricing</h1>
<p>Our <strong>starter</strong> plan is free.</p>
<ul><li>10 pages</li><li>1 site</li></ul>
</body></html>`)
	require.NoError(t, err)
	require.Contains(t, md, "Pricing")
	require.Contains(t, md, "**starter**")
	require.Contains(t, md, "10 pages")
}

func TestToMarkdown_StripsScriptsAndHandlers(t *testing.T) {
	t.Parallel()

	c := New()
	md, err := c.ToMarkdown("https://example.com/", `<html><body>
<p onclick="steal()">Visible text</p>
<script>document.cookie</script>
<img src="https://tracker.example/pixel.gif">
<iframe src="https://evil.example"></iframe>
</body></html>`)
	require.NoError(t, err)
	require.Contains(t, md, "Visible text")
	require.NotContains(t, md, "steal")
	require.NotContains(t, md, "document.cookie")
	require.NotContains(t, md, "tracker.example")
	require.NotContains(t, md, "evil.example")
}

func TestToMarkdown_EmptyDocument(t *testing.T) {
	t.Parallel()

	c := New()

	_, err := c.ToMarkdown("https://example.com/blank", "   ")
	var convErr *core.ConversionError
	require.ErrorAs(t, err, &convErr)

	_, err = c.ToMarkdown("https://example.com/scripts-only", "<script>only()</script>")
	require.ErrorAs(t, err, &convErr)
	require.Contains(t, convErr.Error(), "scripts-only")
}
