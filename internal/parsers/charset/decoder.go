package charset

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	htmlcharset "golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// StripBOM removes a leading UTF-8 byte order mark.
func StripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// StripBOMString is StripBOM for strings.
func StripBOMString(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}

// IsUTF8 reports whether label names UTF-8 (or plain ASCII, its subset).
func IsUTF8(label string) bool {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return true
	}
	return false
}

// lookup resolves a charset label using the WHATWG encoding names.
func lookup(label string) (encoding.Encoding, string, error) {
	enc, name := htmlcharset.Lookup(strings.TrimSpace(label))
	if enc == nil {
		return nil, "", fmt.Errorf("unknown charset %q", label)
	}
	return enc, name, nil
}

// Convert transcodes data from the charset named by label to UTF-8.
func Convert(data []byte, label string) ([]byte, error) {
	if IsUTF8(label) {
		return data, nil
	}
	enc, name, err := lookup(label)
	if err != nil {
		return nil, err
	}
	if name == "utf-8" {
		return data, nil
	}

	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return out, nil
}

// NewReader wraps r so it yields UTF-8 from the charset named by label.
// It matches the xml.Decoder CharsetReader signature.
func NewReader(label string, r io.Reader) (io.Reader, error) {
	return htmlcharset.NewReaderLabel(label, r)
}
