// Package objectstore stores downloaded reel media and resolves the public
// URLs clients stream it from.
package objectstore

import (
	"net/url"
	"path"
	"strings"
)

// VideoContentType is the content type every reel is stored with.
const VideoContentType = "video/mp4"

// PublicURL joins a public base URL and an object key.
func PublicURL(baseURL, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.Join(parts, "/")
}

// KeyFromURL recovers the object key from a public URL. URLs under baseURL
// map back to their full key, anything else to its final path segment.
// An empty string means no key could be derived.
func KeyFromURL(baseURL, publicURL string) string {
	publicURL = strings.TrimSpace(publicURL)
	if publicURL == "" {
		return ""
	}

	prefix := strings.TrimRight(baseURL, "/") + "/"
	if baseURL != "" && strings.HasPrefix(publicURL, prefix) {
		rest := strings.TrimPrefix(publicURL, prefix)
		if i := strings.IndexAny(rest, "?#"); i >= 0 {
			rest = rest[:i]
		}
		if key, err := url.PathUnescape(rest); err == nil && key != "" {
			return key
		}
	}

	parsed, err := url.Parse(publicURL)
	if err != nil {
		return ""
	}
	base := path.Base(parsed.Path)
	if base == "." || base == "/" {
		return ""
	}
	return base
}
