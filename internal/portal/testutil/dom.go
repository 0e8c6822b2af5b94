package testutil

import (
	"bytes"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

// ParseHTML parses the provided HTML payload into a goquery document for assertions.
func ParseHTML(t testing.TB, body []byte) *goquery.Document {
	t.Helper()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

// CSRFToken extracts the token the layout publishes in its meta tag.
func CSRFToken(t testing.TB, body []byte) string {
	t.Helper()

	token := ParseHTML(t, body).Find(`meta[name="csrf-token"]`).AttrOr("content", "")
	if token == "" {
		t.Fatalf("csrf token missing from page")
	}
	return token
}
