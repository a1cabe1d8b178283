package types

import "time"

// SourceKind tells where retrieved bytes came from.
type SourceKind string

const (
	SourceUpload SourceKind = "upload"
	SourceURL    SourceKind = "url"
)

// RetrievalContext describes a retrieved payload. It is returned alongside
// the content and carried into parse diagnostics.
type RetrievalContext struct {
	Source          SourceKind `json:"source"`
	Location        string     `json:"location"` // URL or upload file name
	StatusCode      int        `json:"statusCode,omitempty"`
	ContentType     string     `json:"contentType"`
	ContentEncoding string     `json:"contentEncoding,omitempty"`
	DeclaredCharset string     `json:"declaredCharset,omitempty"`
	ByteLength      int        `json:"byteLength"`
	RetrievedAt     time.Time  `json:"retrievedAt"`
	// Warnings collects non-fatal decode problems.
	Warnings []string `json:"warnings,omitempty"`
	// Refreshing suppresses any interactive mapping step.
	Refreshing bool `json:"refreshing"`
}

// Content is a retrieved payload ready for classification.
type Content struct {
	Data    []byte
	Context RetrievalContext
}

// Text returns the payload as a string.
func (c *Content) Text() string {
	return string(c.Data)
}
