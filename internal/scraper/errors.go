package scraper

import (
	"errors"
	"fmt"
)

var (
	// ErrTitleNotFound means the page has no non-empty h1.
	ErrTitleNotFound = errors.New("book title not found")
	// ErrNoPreviewAvailable means the preview control or its id/session parameters are missing.
	ErrNoPreviewAvailable = errors.New("no preview available for this book")
	// ErrDownloadLinkNotFound means the confirmation page has no download button with an href.
	ErrDownloadLinkNotFound = errors.New("download link not found")
)

// FetchError reports a transport failure or a non-2xx response. StatusCode is 0 for
// transport failures.
type FetchError struct {
	URL        string
	StatusCode int
	Body       string
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// Stage is a step of download URL resolution.
type Stage string

const (
	StageStart           Stage = "start"
	StagePageFetched     Stage = "page_fetched"
	StageParamsExtracted Stage = "params_extracted"
	StageConfirmFetched  Stage = "confirm_fetched"
	StageLinkResolved    Stage = "link_resolved"
)

// ResolveError wraps a failure with the last stage that completed before it.
type ResolveError struct {
	Stage Stage
	URL   string
	Err   error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve %s (after %s): %v", e.URL, e.Stage, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }
