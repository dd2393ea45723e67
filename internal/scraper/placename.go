package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Titles look like "가게명 : 네이버" or "가게명 - 네이버 지도".
var titleSuffix = regexp.MustCompile(`^\s*(.+?)\s*[:\-|]\s*네이버.*$`)

// PlaceName finds the place's display name in a page snapshot. It tries the
// selector table first, then the document title, then og:title.
func PlaceName(html string, selectors []string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	for _, sel := range selectors {
		if name := strings.TrimSpace(doc.Find(sel).First().Text()); name != "" {
			return name
		}
	}

	if name := fromTitle(doc.Find("title").First().Text()); name != "" {
		return name
	}

	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if name := fromTitle(og); name != "" {
			return name
		}
		return strings.TrimSpace(og)
	}
	return ""
}

func fromTitle(title string) string {
	if m := titleSuffix.FindStringSubmatch(title); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
