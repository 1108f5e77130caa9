// Package chunker splits long memory text into pieces that fit an embedding
// provider's input limit.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Options controls piece sizes, measured in runes.
type Options struct {
	MaxChars int // upper bound for every piece
}

// DefaultOptions suits providers with a context of a few hundred tokens.
func DefaultOptions() Options {
	return Options{MaxChars: 2000}
}

// Split breaks text at paragraph boundaries, then sentence boundaries, then
// whitespace. Text within MaxChars is returned unchanged as a single piece.
// Blank input yields nil.
func Split(text string, opts Options) []string {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultOptions().MaxChars
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= opts.MaxChars {
		return []string{text}
	}

	var units []string
	for _, para := range paragraphs(text) {
		if utf8.RuneCountInString(para) <= opts.MaxChars {
			units = append(units, para)
			continue
		}
		for _, s := range sentences(para) {
			if utf8.RuneCountInString(s) <= opts.MaxChars {
				units = append(units, s)
				continue
			}
			units = append(units, hardSplit(s, opts.MaxChars)...)
		}
	}
	return merge(units, opts.MaxChars)
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sentences cuts after '.', '!' or '?' followed by whitespace, and at newlines.
func sentences(para string) []string {
	var out []string
	start := 0
	runes := []rune(para)
	for i, r := range runes {
		end := -1
		switch {
		case r == '\n':
			end = i
		case (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]):
			end = i + 1
		}
		if end < 0 {
			continue
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// hardSplit cuts s into pieces of at most limit runes, backing off to the last
// space in the window when there is one.
func hardSplit(s string, limit int) []string {
	var out []string
	runes := []rune(s)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}
		if piece := strings.TrimSpace(string(runes[:cut])); piece != "" {
			out = append(out, piece)
		}
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

// merge packs consecutive units greedily into pieces of at most limit runes.
func merge(units []string, limit int) []string {
	var out []string
	var cur strings.Builder
	curLen := 0
	for _, u := range units {
		n := utf8.RuneCountInString(u)
		if curLen > 0 && curLen+1+n > limit {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(u)
		curLen += n
	}
	if curLen > 0 {
		out = append(out, cur.String())
	}
	return out
}
