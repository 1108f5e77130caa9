package lexical

import (
	"strings"
	"unicode"
)

// unsegmentedScripts are written without spaces between words. With no word
// segmenter available, each rune is its own token.
var unsegmentedScripts = []*unicode.RangeTable{
	unicode.Han,
	unicode.Hiragana,
	unicode.Katakana,
	unicode.Thai,
	unicode.Lao,
	unicode.Khmer,
	unicode.Myanmar,
}

func isUnsegmented(r rune) bool {
	return unicode.In(r, unsegmentedScripts...)
}

// Tokenize lowercases text and splits it on whitespace and punctuation.
// Runes from unsegmented scripts are emitted one per token.
func Tokenize(text string) []string {
	text = strings.ToLower(text)

	tokens := make([]string, 0, len(text)/4)
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		switch {
		case isUnsegmented(r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r):
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return tokens
}
