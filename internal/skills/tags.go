package skills

import (
	"strings"
	"unicode"
)

const maxTags = 8

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "app": {}, "application": {}, "build": {},
	"create": {}, "for": {}, "from": {}, "in": {}, "make": {}, "of": {},
	"on": {}, "or": {}, "simple": {}, "that": {}, "the": {}, "to": {},
	"using": {}, "with": {},
}

// deriveTags extracts keyword tags from a skill's name and description.
// Tags are lowercase, deduplicated, and capped; generic filler words are
// dropped so the tags stay searchable.
func deriveTags(name, description string) []string {
	seen := make(map[string]struct{})
	var tags []string

	for _, word := range tokenize(name + " " + description) {
		if len(word) < 3 {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		tags = append(tags, word)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

// shortName condenses a goal description into a display name.
func shortName(description string) string {
	words := strings.Fields(description)
	if len(words) > 6 {
		words = words[:6]
	}
	return strings.Join(words, " ")
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
