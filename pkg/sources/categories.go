package sources

import (
	"strings"
	"unicode"

	"github.com/samvad-hq/newswatch/internal/domain"
)

// filterCategories keeps items that match one of the source's category labels
// as a whole word in their extracted categories or title. Items without
// extracted categories receive the matched labels. Sources without labels are
// passed through untouched.
func filterCategories(src Source, items []domain.Item) []domain.Item {
	if len(src.Categories) == 0 {
		return items
	}

	out := items[:0]
	for _, item := range items {
		matched := matchLabels(src.Categories, item)
		if len(matched) == 0 {
			continue
		}
		if len(item.Categories) == 0 {
			item.Categories = matched
		}
		out = append(out, item)
	}
	return out
}

func matchLabels(labels []string, item domain.Item) []string {
	var matched []string
	for _, label := range labels {
		if containsPhrase(item.Title, label) {
			matched = appendUnique(matched, label)
			continue
		}
		for _, c := range item.Categories {
			if containsPhrase(c, label) {
				matched = appendUnique(matched, label)
				break
			}
		}
	}
	return matched
}

// containsPhrase reports whether phrase occurs in text as a sequence of whole
// words, ignoring case and punctuation.
func containsPhrase(text, phrase string) bool {
	needle := words(phrase)
	if len(needle) == 0 {
		return false
	}
	hay := words(text)
	for i := 0; i+len(needle) <= len(hay); i++ {
		match := true
		for j := range needle {
			if hay[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
