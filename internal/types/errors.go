package types

import (
	"errors"
	"fmt"
	"strings"
)

// FetchError is returned when a remote feed cannot be retrieved.
// StatusCode is zero for transport failures.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	msg := "failed to fetch " + e.URL
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": HTTP %d", e.StatusCode)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError records a decompression or charset conversion that failed.
// It never aborts retrieval; the raw bytes are kept instead.
type DecodeError struct {
	Stage string // "content-encoding" or "charset"
	Label string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Stage, e.Label, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UploadError rejects an uploaded file before parsing.
type UploadError struct {
	Filename    string
	ContentType string
	TooLarge    bool
	Limit       int64
}

func (e *UploadError) Error() string {
	if e.TooLarge {
		return fmt.Sprintf("upload %s exceeds %d bytes", e.Filename, e.Limit)
	}
	return fmt.Sprintf("upload %s has unsupported type %s", e.Filename, e.ContentType)
}

// ParseError is returned when neither parser produced any items.
type ParseError struct {
	ContentType string
	ByteLength  int
	Location    string
	Sample      string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("no items found as XML or CSV (content type %q, %d bytes, source %s)",
		e.ContentType, e.ByteLength, e.Location)
}

// MappingError lists required attributes that have no selector.
type MappingError struct {
	Missing []Attribute
}

func (e *MappingError) Error() string {
	names := make([]string, len(e.Missing))
	for i, a := range e.Missing {
		names[i] = string(a)
	}
	return "missing field mapping for " + strings.Join(names, ", ")
}

// ImportError wraps a failure inside the import transaction. Nothing was
// committed when it is returned.
type ImportError struct {
	FeedID string
	Stage  string
	Err    error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import of feed %s failed during %s: %v", e.FeedID, e.Stage, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// IsMappingError reports whether err is or wraps a MappingError.
func IsMappingError(err error) bool {
	var me *MappingError
	return errors.As(err, &me)
}
