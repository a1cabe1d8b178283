package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// pricePattern matches the first number: optional sign, digits, and an
// optional fractional part after a dot or comma.
var pricePattern = regexp.MustCompile(`[-+]?\d+(?:[.,]\d+)?`)

// ParsePrice extracts the first number from a free-form price string such as
// "189.00 SEK" or "12,50 €". A comma decimal separator is read as a dot.
// It returns nil when the text contains no digits.
func ParsePrice(raw string) *float64 {
	match := pricePattern.FindString(raw)
	if match == "" {
		return nil
	}
	value, err := strconv.ParseFloat(strings.Replace(match, ",", ".", 1), 64)
	if err != nil {
		return nil
	}
	return &value
}
