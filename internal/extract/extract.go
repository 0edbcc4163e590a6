// Package extract turns fetched HTML into clean article text. Several
// strategies are tried in order and the first that yields enough text wins.
package extract

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"

	"github.com/hyperifyio/postforge/internal/apperr"
)

// MinContentChars is the shortest text accepted as a successful extraction.
const MinContentChars = 100

// Document is a simplified representation of extracted page content.
type Document struct {
	Title string
	Text  string
}

// Strategy names the extraction step that produced a Document.
type Strategy string

const (
	StrategyContainer   Strategy = "container"
	StrategyJSONLD      Strategy = "jsonld"
	StrategyReadability Strategy = "readability"
	StrategyPage        Strategy = "page"
)

// containerHints are id/class fragments that mark article bodies.
var containerHints = []string{
	"article-body", "article-content", "articlebody", "entry-content",
	"post-content", "post-body", "story-body", "main-content", "content-body",
}

// FromHTML runs the strategies over input. pageURL resolves relative links
// for readability and may be empty. It returns apperr.InsufficientContent
// when no strategy reaches MinContentChars.
func FromHTML(input []byte, pageURL string) (Document, Strategy, error) {
	root, err := html.Parse(bytes.NewReader(input))
	if err != nil || root == nil {
		return Document{}, "", apperr.Wrap(apperr.ExtractionFailed, err, "parse html")
	}
	title := findTitle(root)

	best := Document{Title: title}
	bestStrategy := Strategy("")
	try := func(s Strategy, text string) bool {
		text = Clean(text)
		if len([]rune(text)) >= MinContentChars {
			best.Text = text
			bestStrategy = s
			return true
		}
		if len(text) > len(best.Text) {
			best.Text = text
			bestStrategy = s
		}
		return false
	}

	if try(StrategyContainer, longestContainer(root)) {
		return best, bestStrategy, nil
	}
	if try(StrategyJSONLD, longestArticleBody(root)) {
		return best, bestStrategy, nil
	}
	if t, text := readabilityText(input, pageURL); try(StrategyReadability, text) {
		if best.Title == "" {
			best.Title = t
		}
		return best, bestStrategy, nil
	}
	if try(StrategyPage, strippedPage(root)) {
		return best, bestStrategy, nil
	}
	return best, bestStrategy, apperr.E(apperr.InsufficientContent, "extracted only %d characters; at least %d are required", len([]rune(best.Text)), MinContentChars)
}

// longestContainer collects text from every semantic article container and
// returns the longest.
func longestContainer(root *html.Node) string {
	var best string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isContainer(n) {
			var b strings.Builder
			collectText(&b, n, false, false)
			if text := Clean(b.String()); len(text) > len(best) {
				best = text
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return best
}

func isContainer(n *html.Node) bool {
	switch strings.ToLower(n.Data) {
	case "article", "main":
		return true
	}
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		val := strings.ToLower(a.Val)
		switch key {
		case "role":
			if val == "main" || val == "article" {
				return true
			}
		case "itemprop":
			if val == "articlebody" {
				return true
			}
		case "id", "class":
			if containsAny(val, containerHints) {
				return true
			}
		}
	}
	return false
}

// longestArticleBody searches JSON-LD blocks for articleBody fields,
// including inside @graph and top-level arrays.
func longestArticleBody(root *html.Node) string {
	var best string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "script") && strings.Contains(strings.ToLower(attr(n, "type")), "ld+json") {
			var raw strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					raw.WriteString(c.Data)
				}
			}
			var v any
			if json.Unmarshal([]byte(raw.String()), &v) == nil {
				for _, body := range articleBodies(v) {
					if len(body) > len(best) {
						best = body
					}
				}
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return best
}

func articleBodies(v any) []string {
	var out []string
	switch t := v.(type) {
	case []any:
		for _, it := range t {
			out = append(out, articleBodies(it)...)
		}
	case map[string]any:
		if s, ok := t["articleBody"].(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, html.UnescapeString(s))
		}
		for k, child := range t {
			if k == "articleBody" {
				continue
			}
			switch child.(type) {
			case []any, map[string]any:
				out = append(out, articleBodies(child)...)
			}
		}
	}
	return out
}

// readabilityText runs Mozilla's Readability algorithm and renders the
// article as markdown, or plain text when conversion fails.
func readabilityText(input []byte, pageURL string) (title, text string) {
	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(input), parsedURL)
	if err != nil || article.Node == nil {
		return "", ""
	}
	if md, err := htmltomarkdown.ConvertNode(article.Node); err == nil && len(bytes.TrimSpace(md)) > 0 {
		return article.Title(), string(md)
	}
	var buf bytes.Buffer
	_ = article.RenderText(&buf)
	return article.Title(), buf.String()
}

// strippedPage returns the body text with navigation, headers, footers,
// asides, ads and comment regions removed.
func strippedPage(root *html.Node) string {
	body := findFirst(root, "body")
	if body == nil {
		body = root
	}
	var b strings.Builder
	collectText(&b, body, false, true)
	return b.String()
}

func findTitle(n *html.Node) string {
	if head := findFirst(n, "head"); head != nil {
		for _, m := range findAll(head, "meta") {
			if p := strings.ToLower(attr(m, "property")); p == "og:title" {
				if c := strings.TrimSpace(attr(m, "content")); c != "" {
					return c
				}
			}
		}
		if t := findFirst(head, "title"); t != nil && t.FirstChild != nil {
			if s := strings.TrimSpace(t.FirstChild.Data); s != "" {
				return s
			}
		}
	}
	if h1 := findFirst(n, "h1"); h1 != nil {
		var b strings.Builder
		collectText(&b, h1, false, false)
		return Clean(b.String())
	}
	return ""
}

func findFirst(n *html.Node, tag string) *html.Node {
	var res *html.Node
	var dfs func(*html.Node)
	dfs = func(cur *html.Node) {
		if res != nil {
			return
		}
		if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, tag) {
			res = cur
			return
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			dfs(c)
			if res != nil {
				return
			}
		}
	}
	dfs(n)
	return res
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var dfs func(*html.Node)
	dfs = func(cur *html.Node) {
		if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, tag) {
			out = append(out, cur)
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			dfs(c)
		}
	}
	dfs(n)
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// collectText walks n and writes its text with block-level line breaks.
// strict additionally drops page chrome (header, forms) and regions whose
// id or class marks them as ads or comments.
func collectText(b *strings.Builder, n *html.Node, inPre, strict bool) {
	if n.Type == html.ElementNode {
		if isBoilerplateContainer(n) || (strict && isChrome(n)) {
			return
		}
		name := strings.ToLower(n.Data)
		switch name {
		case "script", "style", "noscript", "nav", "footer", "aside", "iframe", "template", "svg":
			return
		case "header", "form", "button":
			if strict {
				return
			}
		case "pre", "code":
			inPre = true
		case "br", "hr":
			b.WriteString("\n")
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "ul", "ol", "blockquote", "div", "section", "tr":
			// Add a newline before block starts to ensure separation
			b.WriteString("\n")
		}
	}

	if n.Type == html.TextNode {
		data := n.Data
		if !inPre {
			data = strings.ReplaceAll(data, "\t", " ")
			data = strings.ReplaceAll(data, "\r", " ")
		}
		b.WriteString(data)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c, inPre, strict)
	}

	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote":
			b.WriteString("\n\n")
		case "li", "div", "section", "tr":
			b.WriteString("\n")
		case "pre":
			b.WriteString("\n")
		}
	}
}

// isBoilerplateContainer returns true if the element looks like a cookie/consent banner.
func isBoilerplateContainer(n *html.Node) bool {
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if key != "id" && key != "class" && !strings.HasPrefix(key, "data-") && key != "aria-label" && key != "role" {
			continue
		}
		if containsAny(strings.ToLower(a.Val), []string{"cookie", "consent", "gdpr"}) {
			return true
		}
	}
	return false
}

var chromeTokens = map[string]bool{
	"ad": true, "ads": true, "advert": true, "advertisement": true, "sponsored": true,
	"sponsor": true, "promo": true, "comment": true, "comments": true, "disqus": true,
	"share": true, "social": true, "related": true, "newsletter": true, "subscribe": true,
	"sidebar": true, "navbar": true, "menu": true, "breadcrumb": true, "breadcrumbs": true,
	"banner": true, "popup": true, "modal": true,
}

// isChrome matches whole id/class tokens so "header" does not hit "ad".
func isChrome(n *html.Node) bool {
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if key == "role" {
			switch strings.ToLower(a.Val) {
			case "navigation", "banner", "complementary", "contentinfo":
				return true
			}
			continue
		}
		if key != "id" && key != "class" {
			continue
		}
		tokens := strings.FieldsFunc(strings.ToLower(a.Val), func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
		})
		for _, t := range tokens {
			if chromeTokens[t] {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
