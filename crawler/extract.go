package crawler

import (
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Page is the text content extracted from one documentation page.
type Page struct {
	URL         string
	Title       string
	Section     string
	LastUpdated string
	Text        string
}

// Tags whose subtrees carry no documentation text.
var skipTags = map[string]bool{
	"script": true, "style": true, "nav": true, "footer": true, "header": true,
}

var skipExtensions = []string{".pdf", ".zip", ".jpg", ".png", ".gif", ".css", ".js"}

// Extract parses a page and pulls out its title, section, last-updated stamp
// and visible text. Text comes from <main> or <article> when present, the
// whole <body> otherwise.
func Extract(content, pageURL string) (*Page, error) {
	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, err
	}

	p := &Page{
		URL:         pageURL,
		Title:       pageURL,
		Section:     sectionFromURL(pageURL),
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
	}

	if title := findElement(root, "title"); title != nil {
		if t := strings.TrimSpace(textContent(title)); t != "" {
			p.Title = t
		}
	}
	if updated := findLastUpdated(root); updated != "" {
		p.LastUpdated = updated
	}

	contentRoot := findElement(root, "main")
	if contentRoot == nil {
		contentRoot = findElement(root, "article")
	}
	if contentRoot == nil {
		contentRoot = findElement(root, "body")
	}
	if contentRoot == nil {
		contentRoot = root
	}
	p.Text = cleanLines(textContent(contentRoot))
	return p, nil
}

// Links returns the absolute, fragment-stripped URLs of all anchors on the
// page that pass the given filter.
func Links(content, baseURL string, valid func(string) bool) []string {
	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var links []string
	seen := make(map[string]bool)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				ref, err := url.Parse(attr.Val)
				if err != nil {
					continue
				}
				abs := base.ResolveReference(ref)
				abs.Fragment = ""
				s := abs.String()
				if !seen[s] && valid(s) {
					seen[s] = true
					links = append(links, s)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return links
}

// ValidDocURL reports whether a URL belongs to one of the allowed hosts and
// is not a binary or asset file.
func ValidDocURL(rawURL string, hosts map[string]bool) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !hosts[u.Host] {
		return false
	}
	lower := strings.ToLower(u.Path)
	for _, ext := range skipExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}

func sectionFromURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	var parts []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, " > ")
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findLastUpdated(n *html.Node) string {
	if n.Type == html.ElementNode {
		attrs := make(map[string]string, len(n.Attr))
		for _, a := range n.Attr {
			attrs[a.Key] = a.Val
		}
		switch n.Data {
		case "meta":
			if attrs["property"] == "article:modified_time" || attrs["name"] == "last-modified" {
				if v := attrs["content"]; v != "" {
					return v
				}
			}
		case "time":
			if v := attrs["datetime"]; v != "" {
				return v
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if v := findLastUpdated(c); v != "" {
			return v
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte('\n')
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func cleanLines(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
