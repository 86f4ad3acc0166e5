// Package fingerprint derives stable identities and content signatures for
// requested media items. All functions are pure and safe for concurrent use.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// VideoID extracts a stable identity from a source URL. It understands the
// short and long YouTube URL forms and falls back to a hash of the raw URL
// for anything else, so every source reference always yields an identity.
func VideoID(rawURL string) string {
	if idx := strings.Index(rawURL, "youtu.be/"); idx >= 0 {
		id := rawURL[idx+len("youtu.be/"):]
		if cut := strings.IndexAny(id, "?&"); cut >= 0 {
			id = id[:cut]
		}
		if id != "" {
			return id
		}
	}

	if strings.Contains(rawURL, "youtube.com/watch") {
		if u, err := url.Parse(rawURL); err == nil {
			if v := u.Query().Get("v"); v != "" {
				return v
			}
		}
	}

	return hashFallback(rawURL)
}

func hashFallback(rawURL string) string {
	sum := md5.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:11]
}

// ContentHash computes the exact-match duplicate signature: a hash over the
// normalized title (lower-cased, alphanumeric only), the integer duration,
// and the lower-cased uploader.
func ContentHash(title string, durationSeconds int, uploader string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}

	content := fmt.Sprintf("%s_%d_%s", b.String(), durationSeconds, strings.ToLower(uploader))
	sum := md5.Sum([]byte(content))

	return hex.EncodeToString(sum[:])
}

// Similarity returns the Jaccard similarity of the two titles' word sets,
// in [0, 1]. Titles are lower-cased and split on whitespace; an empty word
// set on either side scores 0.
func Similarity(titleA, titleB string) float64 {
	wordsA := wordSet(titleA)
	wordsB := wordSet(titleB)

	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	intersection := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection

	return float64(intersection) / float64(union)
}

func wordSet(title string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(title)) {
		set[w] = struct{}{}
	}

	return set
}
