package intake

import (
	"strings"
	"unicode"
)

// Vocabulary is the set of claim-relevant terms pulled from transcripts.
var Vocabulary = []string{
	"accident", "collision", "crash", "injury", "injured", "pain",
	"hospital", "emergency", "ambulance", "clinic", "doctor", "surgery",
	"prescription", "pharmacy", "medication",
	"police", "theft", "stolen", "fire", "flood", "damage",
	"witness", "receipt", "cash", "urgent",
}

var vocabulary = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Vocabulary))
	for _, w := range Vocabulary {
		m[w] = struct{}{}
	}
	return m
}()

// ExtractKeywords returns vocabulary terms found in text, in order of first
// appearance and without duplicates.
func ExtractKeywords(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	seen := make(map[string]bool)
	keywords := []string{}
	for _, w := range words {
		if _, ok := vocabulary[w]; !ok || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	return keywords
}
