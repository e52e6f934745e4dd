package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

const (
	// MediaExtension is appended to every storage key.
	MediaExtension = ".mp4"

	// emptyStem replaces titles that sanitize to nothing.
	emptyStem = "reel"

	digestLen    = 10
	maxStemRunes = 80
)

// SanitizeTitle turns a display title into a storage-safe token. Spaces
// become underscores; path separators, wildcard and quoting characters
// (\ / * ? : " < > |) and any other punctuation are removed. Letters and
// digits of any script are kept, as are '-', '_' and '.'. The result may be
// empty.
func SanitizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))

	n := 0
	lastUnderscore := false
	for _, r := range strings.TrimSpace(title) {
		if n >= maxStemRunes {
			break
		}
		switch {
		case unicode.IsSpace(r) || r == '_':
			if lastUnderscore || b.Len() == 0 {
				continue
			}
			b.WriteRune('_')
			lastUnderscore = true
			n++
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.':
			b.WriteRune(r)
			lastUnderscore = false
			n++
		}
	}
	return strings.Trim(b.String(), "_.")
}

// StorageKey derives the object key for a reel. The sanitized title keeps
// keys readable, the digest of the source URL keeps them unique per URL.
func StorageKey(title, sourceURL string) string {
	stem := SanitizeTitle(title)
	if stem == "" {
		stem = emptyStem
	}
	return stem + "_" + urlDigest(sourceURL) + MediaExtension
}

func urlDigest(sourceURL string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sourceURL)))
	return hex.EncodeToString(sum[:])[:digestLen]
}
