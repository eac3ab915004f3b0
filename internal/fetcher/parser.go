// Package fetcher composes the resilience stack (validation, rate
// limiting, circuit breaking, retry, dedup, caching, connection
// pooling, streaming) into the top-level Fetch/FetchBatch operations.
// Spec §4.13.
package fetcher

// ContentParser turns a fetched body into a typed value, keyed by the
// contenttype.Kind the ContentTypeDetector assigned (or the caller forced
// via Request.ContentType). This is the module's one pluggable
// extension surface beyond the Backend interfaces each pool already
// defines (spec §1's OUT OF SCOPE carve-out): the core ships two
// reference implementations, CSSParser and XPathParser, and callers
// may register others via Fetcher.RegisterParser.
type ContentParser interface {
	// Parse consumes body and returns a typed value. contentType is
	// the detected or forced MIME/content kind string, not the raw
	// Content-Type header.
	Parse(body []byte, rawURL string, contentType string) (any, error)
}
