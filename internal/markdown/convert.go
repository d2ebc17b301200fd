// Package markdown normalizes fetched HTML into clean Markdown.
//
// Sanitization runs before conversion so scripts, inline event handlers and
// src-bearing tracking elements never leak into stored content or into
// downstream generation prompts.
package markdown

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/sitebrain/sitebrain/internal/core"
)

// Converter implements core.Converter.
type Converter struct {
	policy *bluemonday.Policy
	md     *converter.Converter
}

// New builds a Converter with the sanitization policy applied.
func New() *Converter {
	return &Converter{
		policy: newPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// newPolicy builds an allowlist covering textual structure only. Everything
// not listed is dropped, which covers <script>, on* event-handler attributes,
// iframes and tracking pixels without enumerating them.
func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "br", "hr", "div", "span", "article", "section", "main",
		"ul", "ol", "li", "dl", "dt", "dd",
		"table", "thead", "tbody", "tr", "th", "td",
		"blockquote", "pre", "code", "strong", "em", "b", "i", "u",
	)
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.RequireParseableURLs(true)
	return p
}

// ToMarkdown sanitizes html and converts it to Markdown. An empty conversion
// result is a page-scoped ConversionError, never site-fatal.
func (c *Converter) ToMarkdown(url string, html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", &core.ConversionError{URL: url, Reason: "empty document"}
	}

	clean := c.policy.Sanitize(html)

	md, err := c.md.ConvertString(clean, converter.WithDomain(url))
	if err != nil {
		return "", &core.ConversionError{URL: url, Reason: err.Error()}
	}

	md = strings.TrimSpace(md)
	if md == "" {
		return "", &core.ConversionError{URL: url, Reason: "no textual content after sanitization"}
	}
	return md, nil
}
