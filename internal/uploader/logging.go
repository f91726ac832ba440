package uploader

import (
	"log"
	"net/url"
	"strings"
)

// logRequest logs an outgoing request with query and credentials stripped.
func logRequest(method, endpoint string) {
	safe := endpoint
	if parsed, err := url.Parse(endpoint); err == nil {
		parsed.User = nil
		parsed.RawQuery = ""
		parsed.Fragment = ""
		if parsed.Scheme != "" || parsed.Host != "" {
			safe = parsed.Scheme + "://" + parsed.Host + parsed.Path
		} else {
			safe = parsed.Path
		}
	} else if idx := strings.Index(endpoint, "?"); idx >= 0 {
		safe = endpoint[:idx]
	}
	log.Printf("[uploader] %s %s", method, safe)
}
