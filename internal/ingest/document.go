// Package ingest defines the normalized document shape every source adapter
// (email relay, direct upload) hands to the pipeline, plus the local
// directory adapter used by the batch CLI. Source-specific decoding (MIME,
// EML, HTML rendering) happens outside this module.
package ingest

// EmailMeta carries relay metadata for documents that arrived by email.
type EmailMeta struct {
	FromEmail string
	ToEmail   string
	SourceURL string // location of the stored raw message
}

// Document is one normalized inbound document.
type Document struct {
	Filename    string
	Bytes       []byte
	ContentType string
	// OriginalInfo tags the source channel ("upload", "email_relay", ...).
	OriginalInfo string
	// Email is set only for email-sourced documents.
	Email *EmailMeta
}

// Adapter supplies a normalized document list per inbound submission.
type Adapter interface {
	Documents() ([]Document, error)
}
