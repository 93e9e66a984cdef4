package parserproc

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractedPage is what one HTML document yields: its main text content
// and every link it points to, resolved against the page's own final URL
// (not a single fixed base host, since each fetch:queue item can come
// from a different domain).
type extractedPage struct {
	text  string
	links []string
}

// extractPage parses html and pulls text + links, resolving relative
// hrefs against baseURL. A malformed document (one goquery can't parse
// at all) returns an error; a document with no extractable text or
// links is not an error — it simply yields an empty extractedPage.
func extractPage(html []byte, baseURL string) (extractedPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return extractedPage{}, err
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return extractedPage{}, err
	}

	doc.Find("script, style, noscript").Remove()
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")

	var links []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		resolved, err := resolveLink(base, href)
		if err != nil || resolved == "" {
			return
		}
		if seen[resolved] {
			return
		}
		seen[resolved] = true
		links = append(links, resolved)
	})

	return extractedPage{text: text, links: links}, nil
}

func resolveLink(base *url.URL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return "", nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", nil
	}
	resolved.Fragment = ""
	return resolved.String(), nil
}
