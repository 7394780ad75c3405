package textproc

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxKeywords is the maximum size of a keyword set.
	MaxKeywords = 6
	// MinKeywordLength is the minimum number of characters in a keyword.
	MinKeywordLength = 5
)

// stopwords holds common English function words and noise words that show up
// in nearly every identification. Comparison is done on the lower-cased token
// as it appears in the text, punctuation included.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"this", "that", "and", "or", "the", "a", "an", "is", "are", "was",
		"were", "be", "been", "being", "have", "has", "had", "do", "does", "did",
		"will", "would", "shall", "should", "may", "might", "must", "can", "could",
		"of", "in", "on", "at", "to", "for", "with", "as", "by", "from", "about",
		"into", "through", "over", "under", "above", "below", "between", "among",
		"out", "off", "up", "down", "around", "throughout", "along", "across",
		"against", "before", "after", "behind", "beneath", "beside", "beyond",
		"inside", "outside", "underneath", "within", "without", "upon", "onto",
		"toward",
		"image", "image,", "image.", "photo", "photo,", "photo.",
	} {
		stopwords[w] = struct{}{}
	}
}

// IsStopword reports whether word is excluded from keyword candidacy.
func IsStopword(word string) bool {
	_, ok := stopwords[strings.ToLower(word)]
	return ok
}

// ExtractKeywords returns up to MaxKeywords salient tokens from text in order
// of first appearance. Duplicates are detected case-insensitively and the
// casing of the first occurrence is kept. The result is never nil.
func ExtractKeywords(text string) []string {
	keywords := make([]string, 0, MaxKeywords)
	seen := make(map[string]struct{})

	for _, word := range strings.Fields(text) {
		if utf8.RuneCountInString(word) < MinKeywordLength {
			continue
		}
		lower := strings.ToLower(word)
		if _, stop := stopwords[lower]; stop {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		keywords = append(keywords, word)
		if len(keywords) == MaxKeywords {
			break
		}
	}

	return keywords
}
