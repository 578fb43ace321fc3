// CLAUDE:SUMMARY Converts page HTML to markdown: sanitize with bluemonday, then structured conversion with title extraction and content hashing.
// Package extract turns raw page HTML into markdown a client can read.
//
// The pipeline: raw HTML → title lookup → sanitize (scripts, styles and
// event handlers stripped) → markdown conversion → plain-text fallback
// when conversion produces nothing.
package extract

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Result is the output of one conversion.
type Result struct {
	Markdown string `json:"markdown"`
	Title    string `json:"title"`
	Hash     string `json:"hash"`
}

// Converter sanitizes HTML and renders it as markdown. Safe for
// concurrent use.
type Converter struct {
	policy *bluemonday.Policy
	md     *converter.Converter
}

// NewConverter builds the sanitizer and the markdown converter once;
// both are reused across pages.
func NewConverter() *Converter {
	return &Converter{
		policy: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Markdown converts page HTML to markdown. pageURL anchors relative links
// in the output. An empty conversion falls back to the page's plain text
// rather than failing.
func (c *Converter) Markdown(rawHTML, pageURL string) (*Result, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}
	title := findTitle(doc)

	clean := c.policy.Sanitize(rawHTML)

	md, err := c.md.ConvertString(clean, converter.WithDomain(pageURL))
	if err != nil {
		return nil, fmt.Errorf("extract: convert to markdown: %w", err)
	}
	md = strings.TrimSpace(md)
	if md == "" {
		md = collectText(doc)
	}

	return &Result{
		Markdown: md,
		Title:    title,
		Hash:     hashText(md),
	}, nil
}

// findTitle extracts the page <title> text.
func findTitle(doc *html.Node) string {
	var title string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			if n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(doc)
	return title
}

// collectText extracts all visible text from a node subtree.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		// Skip script, style, noscript.
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

// hashText returns the SHA-256 hex digest of text.
func hashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h)
}
