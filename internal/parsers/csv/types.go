package csv

// DefaultDelimiters are the candidate delimiters in priority order.
var DefaultDelimiters = []rune{',', ';', '\t', '|'}

// Options controls dialect detection.
type Options struct {
	// Delimiters are tried in order; ties go to the earlier candidate.
	Delimiters []rune
	QuoteChar  rune
}

// DefaultOptions returns comma/semicolon/tab/pipe detection with double quotes.
func DefaultOptions() Options {
	return Options{
		Delimiters: DefaultDelimiters,
		QuoteChar:  '"',
	}
}

// Result is the outcome of parsing delimited text.
type Result struct {
	Delimiter rune
	// Headers in source order, trimmed and without a byte order mark.
	Headers []string
	// Rows map header name to trimmed value.
	Rows []map[string]string
	// Skipped counts non-blank lines dropped for a field count mismatch.
	Skipped int
}
