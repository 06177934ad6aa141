package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ebooklister/ebooklister/internal/config"
)

// SessionParams are the identifiers the source site embeds in its preview control.
type SessionParams struct {
	ID      string
	Session string
}

// Extractor locates elements on source pages. Selectors come from configuration so a site
// redesign is a config change rather than a code change.
type Extractor struct {
	PreviewSelector  string
	PreviewAttribute string
	DownloadSelector string
}

// DefaultExtractor matches the current markup of the default source site.
var DefaultExtractor = Extractor{
	PreviewSelector:  config.DefaultPreviewSelector,
	PreviewAttribute: config.DefaultPreviewAttribute,
	DownloadSelector: config.DefaultDownloadSelector,
}

// ExtractTitle returns the trimmed text of the first h1 element.
func ExtractTitle(html string) (string, error) {
	doc, err := parse(html)
	if err != nil {
		return "", err
	}
	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		return "", ErrTitleNotFound
	}
	return title, nil
}

// ExtractSessionParams reads id and session with DefaultExtractor.
func ExtractSessionParams(html string) (SessionParams, error) {
	return DefaultExtractor.SessionParams(html)
}

// ExtractDownloadPath reads the download href with DefaultExtractor.
func ExtractDownloadPath(html string) (string, error) {
	return DefaultExtractor.DownloadPath(html)
}

// SessionParams parses the query part of the preview control attribute. The attribute may be
// a full URL, a path with a query, or a bare "id=..&session=.." string.
func (e Extractor) SessionParams(html string) (SessionParams, error) {
	doc, err := parse(html)
	if err != nil {
		return SessionParams{}, err
	}
	raw, ok := doc.Find(e.PreviewSelector).First().Attr(e.PreviewAttribute)
	if !ok || strings.TrimSpace(raw) == "" {
		return SessionParams{}, ErrNoPreviewAvailable
	}
	query := strings.TrimSpace(raw)
	if _, after, found := strings.Cut(query, "?"); found {
		query = after
	}
	query, _, _ = strings.Cut(query, "#")
	values, err := url.ParseQuery(query)
	if err != nil {
		return SessionParams{}, fmt.Errorf("%w: malformed preview attribute: %v", ErrNoPreviewAvailable, err)
	}
	params := SessionParams{ID: values.Get("id"), Session: values.Get("session")}
	if params.ID == "" || params.Session == "" {
		return SessionParams{}, ErrNoPreviewAvailable
	}
	return params, nil
}

// DownloadPath returns the href of the first download button.
func (e Extractor) DownloadPath(html string) (string, error) {
	doc, err := parse(html)
	if err != nil {
		return "", err
	}
	var href string
	doc.Find(e.DownloadSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if v, ok := sel.Attr("href"); ok && strings.TrimSpace(v) != "" {
			href = strings.TrimSpace(v)
			return false
		}
		return true
	})
	if href == "" {
		return "", ErrDownloadLinkNotFound
	}
	return href, nil
}

func parse(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}
