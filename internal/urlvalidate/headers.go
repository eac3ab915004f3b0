package urlvalidate

import (
	"fmt"
	"net/http"
	"regexp"
)

// headerToken matches RFC 7230 token characters.
var headerToken = regexp.MustCompile(`^[!#$%&'*+\-.0-9A-Za-z^_` + "`" + `|~]+$`)

// ValidateHeaders screens outgoing request headers. Ported from
// web_fetch's SecurityMiddleware.validate_headers (SPEC_FULL.md §13).
func ValidateHeaders(h http.Header) error {
	for name, values := range h {
		if !headerToken.MatchString(name) {
			return fmt.Errorf("%w: name %q", ErrInvalidHeader, name)
		}
		for _, v := range values {
			if !validHeaderValue(v) {
				return fmt.Errorf("%w: value for %q", ErrInvalidHeader, name)
			}
		}
	}
	switch {
	case len(h.Values("Authorization")) > 0 && len(h.Get("Authorization")) > 8192:
		return fmt.Errorf("%w: Authorization too long", ErrInvalidHeader)
	case len(h.Values("Cookie")) > 0 && len(h.Get("Cookie")) > 4096:
		return fmt.Errorf("%w: Cookie too long", ErrInvalidHeader)
	}
	if host := h.Get("Host"); host != "" && !hostHeaderPattern.MatchString(host) {
		return fmt.Errorf("%w: Host %q", ErrInvalidHeader, host)
	}
	return nil
}

var hostHeaderPattern = regexp.MustCompile(`^[a-zA-Z0-9.-]+(?::[0-9]+)?$`)

func validHeaderValue(v string) bool {
	for _, c := range v {
		if c < 0x20 && c != '\t' {
			return false
		}
	}
	return true
}
