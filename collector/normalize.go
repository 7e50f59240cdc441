package collector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	entryPolicy = newEntryPolicy()

	mrkdwnEscaper   = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	linkEscaper     = strings.NewReplacer("|", "%7C", ">", "%3E", "<", "%3C")
	whitespaceRun   = regexp.MustCompile(`\s+`)
	trailingSpaces  = regexp.MustCompile(`[ \t]+\n`)
	extraBlankLines = regexp.MustCompile(`\n{3,}`)
)

// newEntryPolicy keeps the formatting Slack can show and drops everything
// else, including images and scripts.
func newEntryPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "b", "strong", "i", "em", "ul", "ol", "li", "blockquote", "code", "pre")
	p.AllowAttrs("href").OnElements("a")
	p.RequireParseableURLs(true)
	p.AllowURLSchemes("http", "https", "mailto")
	return p
}

// HtmlToMrkdwn sanitizes a feed entry body and converts it to Slack mrkdwn.
// Character references are decoded, then &, < and > are escaped again the way
// Slack expects.
func HtmlToMrkdwn(rawHtml string) (string, error) {
	sanitized := entryPolicy.Sanitize(rawHtml)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sanitized))
	if err != nil {
		return "", err
	}
	w := &mrkdwnWriter{}
	for _, body := range doc.Find("body").Nodes {
		w.children(body)
	}
	out := trailingSpaces.ReplaceAllString(w.String(), "\n")
	out = extraBlankLines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out), nil
}

type mrkdwnWriter struct {
	sb        strings.Builder
	listDepth int
}

func (w *mrkdwnWriter) String() string {
	return w.sb.String()
}

func (w *mrkdwnWriter) sub() *mrkdwnWriter {
	return &mrkdwnWriter{listDepth: w.listDepth}
}

func (w *mrkdwnWriter) atLineStart() bool {
	s := w.sb.String()
	return s == "" || strings.HasSuffix(s, "\n")
}

func (w *mrkdwnWriter) ensureNewline() {
	if !w.atLineStart() {
		w.sb.WriteString("\n")
	}
}

func (w *mrkdwnWriter) ensureBlankLine() {
	s := w.sb.String()
	switch {
	case s == "" || strings.HasSuffix(s, "\n\n"):
	case strings.HasSuffix(s, "\n"):
		w.sb.WriteString("\n")
	default:
		w.sb.WriteString("\n\n")
	}
}

func (w *mrkdwnWriter) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.node(c)
	}
}

// inline renders the children of n on their own and trims the result.
func (w *mrkdwnWriter) inline(n *html.Node) string {
	inner := w.sub()
	inner.children(n)
	return strings.TrimSpace(inner.String())
}

func (w *mrkdwnWriter) node(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		text := whitespaceRun.ReplaceAllString(n.Data, " ")
		if w.atLineStart() {
			text = strings.TrimLeft(text, " ")
		}
		w.sb.WriteString(mrkdwnEscaper.Replace(text))
		return
	case html.ElementNode:
	default:
		w.children(n)
		return
	}

	switch n.DataAtom {
	case atom.P:
		w.ensureBlankLine()
		w.children(n)
		w.ensureBlankLine()
	case atom.Br:
		w.sb.WriteString("\n")
	case atom.B, atom.Strong:
		w.wrap(n, "*")
	case atom.I, atom.Em:
		w.wrap(n, "_")
	case atom.Code:
		w.wrap(n, "`")
	case atom.Pre:
		w.ensureNewline()
		w.sb.WriteString("```\n")
		w.sb.WriteString(mrkdwnEscaper.Replace(strings.Trim(textContent(n), "\n")))
		w.sb.WriteString("\n```\n")
	case atom.A:
		href := linkEscaper.Replace(attr(n, "href"))
		text := w.inline(n)
		switch {
		case href == "":
			w.sb.WriteString(text)
		case text == "" || text == href:
			w.sb.WriteString("<" + href + ">")
		default:
			w.sb.WriteString("<" + href + "|" + text + ">")
		}
	case atom.Blockquote:
		w.ensureBlankLine()
		for _, line := range strings.Split(w.inline(n), "\n") {
			w.sb.WriteString("> " + line + "\n")
		}
		w.sb.WriteString("\n")
	case atom.Ul, atom.Ol:
		w.list(n)
	default:
		w.children(n)
	}
}

func (w *mrkdwnWriter) wrap(n *html.Node, marker string) {
	text := w.inline(n)
	if text == "" {
		return
	}
	w.sb.WriteString(marker + text + marker)
}

func (w *mrkdwnWriter) list(n *html.Node) {
	w.ensureNewline()
	indent := strings.Repeat("    ", w.listDepth)
	i := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Li {
			continue
		}
		i++
		bullet := "•"
		if n.DataAtom == atom.Ol {
			bullet = fmt.Sprintf("%d.", i)
		}
		item := &mrkdwnWriter{listDepth: w.listDepth + 1}
		item.children(c)
		w.sb.WriteString(indent + bullet + " " + strings.TrimSpace(item.String()) + "\n")
	}
	if w.listDepth == 0 {
		w.sb.WriteString("\n")
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

// PageLanguage returns the lang attribute of the root element of a page.
func PageLanguage(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(page)))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(doc.Find("html").First().AttrOr("lang", "")), nil
}
