package csv

import (
	"strings"
	"unicode/utf8"
)

// DetectDelimiter splits the header line with every candidate and picks the
// one producing the most non-empty fields. The earlier candidate wins a tie.
// It returns the winner and its field count; a count of zero means no
// candidate produced a usable header.
func DetectDelimiter(header string, candidates []rune, quoteChar rune) (rune, int) {
	var (
		best      rune
		bestCount int
	)
	for _, d := range candidates {
		count := 0
		for _, f := range SplitLine(header, d, quoteChar) {
			if strings.TrimSpace(f) != "" {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = d, count
		}
	}
	return best, bestCount
}

// SplitLine splits one line on delimiter. A field that starts with quoteChar
// runs until the closing quote; a doubled quote inside it is a literal quote.
func SplitLine(line string, delimiter rune, quoteChar rune) []string {
	fields := make([]string, 0, 16)
	var current strings.Builder
	inQuotes := false
	fieldStart := true

	for i := 0; i < len(line); {
		r, width := utf8.DecodeRuneInString(line[i:])
		i += width

		if inQuotes {
			if r == quoteChar {
				if next, w := utf8.DecodeRuneInString(line[i:]); w > 0 && next == quoteChar {
					current.WriteRune(quoteChar)
					i += w
					continue
				}
				inQuotes = false
				continue
			}
			current.WriteRune(r)
			continue
		}

		switch {
		case r == delimiter:
			fields = append(fields, current.String())
			current.Reset()
			fieldStart = true
			continue
		case r == quoteChar && fieldStart && quoteChar != 0:
			inQuotes = true
			current.Reset()
		case fieldStart && (r == ' ' || r == '\t'):
			// blanks may precede an opening quote
			current.WriteRune(r)
			continue
		default:
			current.WriteRune(r)
		}
		fieldStart = false
	}

	return append(fields, current.String())
}
