package retrieval

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Decompress reverses a Content-Encoding header value. Codings listed in a
// comma separated value are undone last to first. A body with no declared
// coding that starts with the gzip magic number is gunzipped too.
func Decompress(data []byte, contentEncoding string) ([]byte, error) {
	codings := strings.Split(strings.ToLower(contentEncoding), ",")
	if strings.TrimSpace(contentEncoding) == "" && bytes.HasPrefix(data, gzipMagic) {
		codings = []string{"gzip"}
	}

	out := data
	for i := len(codings) - 1; i >= 0; i-- {
		var err error
		switch coding := strings.TrimSpace(codings[i]); coding {
		case "", "identity":
			continue
		case "gzip", "x-gzip":
			out, err = gunzip(out)
		case "deflate":
			out, err = inflate(out)
		default:
			return nil, fmt.Errorf("unsupported content encoding %q", coding)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return out, nil
}

// inflate accepts zlib-wrapped data, which is what "deflate" means on the
// wire, and falls back to a raw deflate stream that some servers send.
func inflate(data []byte) ([]byte, error) {
	if r, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
		out, err := io.ReadAll(r)
		r.Close()
		if err == nil {
			return out, nil
		}
	}
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	return out, nil
}
