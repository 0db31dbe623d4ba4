// Package render turns text into images, either through a remote render
// service or a local headless Chrome.
package render

import (
	"net/url"
	"strings"
)

// Absolutize prefixes a relative renderer URL with base. Absolute URLs and
// empty values are returned unchanged.
func Absolutize(base, u string) string {
	if u == "" || base == "" {
		return u
	}
	if parsed, err := url.Parse(u); err == nil && parsed.IsAbs() {
		return u
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(u, "/")
}
