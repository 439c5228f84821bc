package search

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/ofsted-harvester/internal/crawler"
)

const (
	entrySelector  = "ul.resultsList li"
	anchorSelector = "h2 a"
)

// ParsePage extracts every provider listing on a search results page.
// A page without listings returns an empty slice.
func ParsePage(body []byte, rules []FieldRule) ([]crawler.ProviderRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	var records []crawler.ProviderRecord
	doc.Find(entrySelector).Each(func(_ int, entry *goquery.Selection) {
		records = append(records, parseEntry(entry, rules))
	})
	return records, nil
}

func parseEntry(entry *goquery.Selection, rules []FieldRule) crawler.ProviderRecord {
	anchor := entry.Find(anchorSelector).First()
	href, _ := anchor.Attr("href")
	rec := crawler.ProviderRecord{
		Name:      strings.TrimSpace(anchor.Text()),
		DetailURL: strings.TrimSpace(href),
	}

	assigned := make([]bool, len(rules))
	addressSet := false
	entry.Find("p").Each(func(_ int, para *goquery.Selection) {
		text := para.Text()
		labelled := false
		for i, rule := range rules {
			if !rule.Matches(text) {
				continue
			}
			labelled = true
			if !assigned[i] {
				rule.Assign(&rec, rule.Capture(text))
				assigned[i] = true
			}
		}
		if !labelled && !addressSet {
			rec.Address = strings.TrimSpace(text)
			addressSet = true
		}
	})
	return rec
}
