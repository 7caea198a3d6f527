package attribution

import (
	"regexp"
	"strings"
	"unicode"
)

var tokenPattern = regexp.MustCompile(`\p{Lu}+|\p{Nd}+`)

// Tokens splits an equipment name into uppercase letter runs and digit runs:
// "RETROPALA 420D" -> ["RETROPALA", "420", "D"].
func Tokens(name string) []string {
	return tokenPattern.FindAllString(strings.ToUpper(name), -1)
}

// ModelTokens returns the model designations of a name: whole words that
// mix letters and digits. "RETROPALA 420D" -> ["420D"]. A bare number such
// as the "5" of "CAMION 5" is not a model designation.
func ModelTokens(name string) []string {
	var out []string
	for _, word := range words(name) {
		if strings.IndexFunc(word, unicode.IsDigit) >= 0 && strings.IndexFunc(word, unicode.IsLetter) >= 0 {
			out = append(out, word)
		}
	}
	return out
}

// words splits text into uppercased alphanumeric words.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToUpper(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsAll(text string, tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	for _, t := range tokens {
		if !strings.Contains(text, t) {
			return false
		}
	}
	return true
}

// containsWords reports whether every word appears whole in text.
func containsWords(text string, want []string) bool {
	if len(want) == 0 {
		return false
	}
	present := make(map[string]bool)
	for _, w := range words(text) {
		present[w] = true
	}
	for _, w := range want {
		if !present[w] {
			return false
		}
	}
	return true
}
