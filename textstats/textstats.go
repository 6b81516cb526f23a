// Package textstats implements the pure text measurements exposed by the
// TextAnalyzer tool provider.
package textstats

import (
	"strings"
	"unicode/utf8"
)

// Analysis is the result of AnalyzeText.
type Analysis struct {
	WordCount      int `json:"word_count" yaml:"word_count"`
	CharacterCount int `json:"character_count" yaml:"character_count"`
}

// SentenceCount is the result of CountSentences.
type SentenceCount struct {
	SentenceCount int `json:"sentence_count" yaml:"sentence_count"`
}

// AnalyzeText returns the number of whitespace-delimited words
// and the number of characters in text, whitespace included.
func AnalyzeText(text string) Analysis {
	return Analysis{
		WordCount:      len(strings.Fields(text)),
		CharacterCount: utf8.RuneCountInString(text),
	}
}

// CountSentences splits text on terminal punctuation and counts
// the fragments that are not blank.
// A run of terminators such as "?!" or "..." is a single boundary.
func CountSentences(text string) SentenceCount {
	count := 0
	for _, fragment := range strings.FieldsFunc(text, isTerminal) {
		if strings.TrimSpace(fragment) != "" {
			count++
		}
	}
	return SentenceCount{SentenceCount: count}
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
