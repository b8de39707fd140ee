// Package scrapetest provides a page session backed by a static HTML string
// for exercising extractors without a browser.
package scrapetest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type Session struct {
	HTML    string
	PageURL string
	Closed  bool
}

func (s *Session) Document() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(s.HTML))
}

func (s *Session) URL() string { return s.PageURL }

func (s *Session) Close() { s.Closed = true }
