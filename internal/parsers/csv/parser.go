package csv

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/kosarica/feed-service/internal/parsers/charset"
)

// Parser turns delimited text into header keyed rows.
type Parser struct {
	options Options
}

// NewParser creates a parser, filling unset options with defaults.
func NewParser(options Options) *Parser {
	if len(options.Delimiters) == 0 {
		options.Delimiters = DefaultDelimiters
	}
	if options.QuoteChar == 0 {
		options.QuoteChar = '"'
	}
	return &Parser{options: options}
}

// Parse reads the first non-empty line as the header, detects the delimiter
// from it and maps every following line with the same field count. Lines with
// a different count and blank lines are skipped. Parse never fails; text
// without a usable header yields an empty Result.
func (p *Parser) Parse(content string) *Result {
	result := &Result{}

	lines := splitLines(charset.StripBOMString(content))
	headerIdx := -1
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return result
	}

	delimiter, count := DetectDelimiter(lines[headerIdx], p.options.Delimiters, p.options.QuoteChar)
	if count == 0 {
		return result
	}
	result.Delimiter = delimiter

	headers := SplitLine(lines[headerIdx], delimiter, p.options.QuoteChar)
	for i, h := range headers {
		headers[i] = strings.TrimSpace(charset.StripBOMString(h))
	}
	result.Headers = headers

	for _, line := range lines[headerIdx+1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := SplitLine(line, delimiter, p.options.QuoteChar)
		if len(fields) != len(headers) {
			result.Skipped++
			continue
		}
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if _, dup := row[h]; dup {
				continue
			}
			row[h] = strings.TrimSpace(fields[i])
		}
		result.Rows = append(result.Rows, row)
	}

	if result.Skipped > 0 {
		log.Debug().
			Int("skipped", result.Skipped).
			Int("rows", len(result.Rows)).
			Str("delimiter", string(delimiter)).
			Msg("CSV lines with mismatched field count skipped")
	}

	return result
}

// Parse parses content with default options.
func Parse(content string) *Result {
	return NewParser(DefaultOptions()).Parse(content)
}

// splitLines splits content into lines handling different line endings
func splitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return strings.Split(content, "\n")
}
