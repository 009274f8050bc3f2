// Package extract turns HTML documents into normalized visible text.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// nonContent lists elements that never contribute visible page text:
// scripts, styling, embedded frames, page chrome and conventional ad slots.
var nonContent = strings.Join([]string{
	"script", "style", "noscript", "iframe", "svg", "template",
	"nav", "header", "footer",
	".ad", ".ads", ".advert", ".advertisement", ".promo", ".sponsored",
	`[class^="ad-"]`, `[id^="ad-"]`, "[data-ad]", "ins.adsbygoogle",
	`[aria-label="advertisement"]`,
}, ", ")

// Extractor satisfies proxy.TextExtractor.
type Extractor struct{}

// New returns an Extractor.
func New() Extractor {
	return Extractor{}
}

// Extract implements proxy.TextExtractor.
func (Extractor) Extract(html string) string {
	return Text(html)
}

// Text returns the visible body text of html with whitespace collapsed.
// Malformed markup yields best-effort text; a document without body content
// yields "".
func Text(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find(nonContent).Remove()
	return Collapse(doc.Find("body").Text())
}

// Collapse replaces every run of whitespace with a single space and trims the ends.
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
