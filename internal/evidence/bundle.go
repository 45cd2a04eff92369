// Package evidence validates production evidence bundles and computes their fingerprint.
//
// The fingerprint identifies the physical batch a bundle describes. Two submissions of the same documents
// and metadata produce the same fingerprint regardless of document order, duplicate entries,
// JSON key order or whitespace.
package evidence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	// MaxDocuments is the maximum number of documents in a bundle.
	MaxDocuments = 64

	// MaxContentSize is the maximum size of a single base64 document.
	MaxContentSize = 10 * 1024 * 1024
)

// ErrInvalidBundle is wrapped by every validation failure.
var ErrInvalidBundle = errors.New("invalid evidence bundle")

// Document describes one piece of production evidence (meter readings, electrolyser logs, lab certificates).
// Content is optional: when present its decoded SHA-256 must equal Checksum.
type Document struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType,omitempty"`
	Size      int64  `json:"size,omitempty"`
	Checksum  string `json:"checksum"`
	Content   string `json:"content,omitempty"`
}

// Bundle is the evidence submitted with a production request.
type Bundle struct {
	// Metadata is the declared production metadata (a JSON object), e.g. plant id, batch id, production window.
	Metadata  json.RawMessage `json:"metadata"`
	Documents []Document      `json:"documents"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidBundle, fmt.Sprintf(format, args...))
}

// Validate checks the bundle structure and any supplied document content.
func (b Bundle) Validate() error {
	trimmed := bytes.TrimSpace(b.Metadata)
	if len(trimmed) == 0 {
		return invalid("metadata is required")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil || obj == nil {
		return invalid("metadata must be a JSON object")
	}

	if len(b.Documents) == 0 {
		return invalid("at least one document is required")
	}
	if len(b.Documents) > MaxDocuments {
		return invalid("too many documents (%d, maximum %d)", len(b.Documents), MaxDocuments)
	}

	for i, d := range b.Documents {
		if strings.TrimSpace(d.Name) == "" {
			return invalid("document %d: name is required", i)
		}
		checksum := strings.ToLower(strings.TrimSpace(d.Checksum))
		if !isChecksum(checksum) {
			return invalid("document %q: checksum must be a hex SHA-256 digest", d.Name)
		}
		if d.Size < 0 {
			return invalid("document %q: size must not be negative", d.Name)
		}
		if d.Content == "" {
			continue
		}
		actual, n, err := HashFromBase64(d.Content, MaxContentSize)
		if err != nil {
			return invalid("document %q: %v", d.Name, err)
		}
		if actual != checksum {
			return invalid("document %q: content does not match checksum", d.Name)
		}
		if d.Size > 0 && n != d.Size {
			return invalid("document %q: declared size %d does not match content size %d", d.Name, d.Size, n)
		}
	}
	return nil
}

// fingerprintInput is the structure that is canonicalized and hashed.
type fingerprintInput struct {
	Documents []string        `json:"documents"`
	Metadata  json.RawMessage `json:"metadata"`
}

// Fingerprint validates the bundle and returns the hex SHA-256 of the RFC 8785 form of
// {"documents": [sorted unique checksums], "metadata": <metadata>}.
// Document names, media types and content do not contribute: the checksums identify the documents.
func Fingerprint(b Bundle) (string, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}

	seen := make(map[string]struct{}, len(b.Documents))
	checksums := make([]string, 0, len(b.Documents))
	for _, d := range b.Documents {
		c := strings.ToLower(strings.TrimSpace(d.Checksum))
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		checksums = append(checksums, c)
	}
	sort.Strings(checksums)

	raw, err := json.Marshal(fingerprintInput{
		Documents: checksums,
		Metadata:  bytes.TrimSpace(b.Metadata),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode fingerprint input: %w", err)
	}

	canonical, err := CanonicalizeJSON(raw)
	if err != nil {
		return "", invalid("metadata cannot be canonicalized: %v", err)
	}
	return Hash(canonical)
}

// Strip returns a copy of the bundle without document content, for storage alongside the request.
func (b Bundle) Strip() Bundle {
	docs := make([]Document, len(b.Documents))
	for i, d := range b.Documents {
		d.Content = ""
		d.Checksum = strings.ToLower(strings.TrimSpace(d.Checksum))
		docs[i] = d
	}
	return Bundle{Metadata: append(json.RawMessage(nil), b.Metadata...), Documents: docs}
}

// Clone returns a copy of the bundle that shares no memory with b.
func (b Bundle) Clone() Bundle {
	c := Bundle{Metadata: append(json.RawMessage(nil), b.Metadata...)}
	if b.Documents != nil {
		c.Documents = append([]Document(nil), b.Documents...)
	}
	return c
}
