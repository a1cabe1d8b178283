package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kosarica/feed-service/internal/pipeline"
	"github.com/kosarica/feed-service/internal/types"
)

// openSource treats http(s) arguments as URLs and everything else as a local
// file. The returned closer is never nil.
func openSource(arg string) (pipeline.Source, io.Closer, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return pipeline.Source{URL: arg}, io.NopCloser(nil), nil
	}
	f, err := os.Open(arg)
	if err != nil {
		return pipeline.Source{}, io.NopCloser(nil), fmt.Errorf("failed to open %s: %w", arg, err)
	}
	return pipeline.Source{Filename: filepath.Base(arg), Upload: f}, f, nil
}

// parseMappingFlag reads "sku=g:id,title=title" style mappings.
func parseMappingFlag(s string) (*types.FieldMapping, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var m types.FieldMapping
	for _, pair := range strings.Split(s, ",") {
		attr, selector, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid mapping %q: expected attribute=selector", pair)
		}
		a := types.Attribute(strings.TrimSpace(attr))
		if !isAttribute(a) {
			return nil, fmt.Errorf("unknown attribute %q", attr)
		}
		m.Set(a, strings.TrimSpace(selector))
	}
	return &m, nil
}

func isAttribute(a types.Attribute) bool {
	for _, known := range types.Attributes {
		if a == known {
			return true
		}
	}
	return false
}
