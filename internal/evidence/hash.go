// this file provides the SHA-256 checksums used for evidence documents.
//
// Checksums are lower-case hex SHA-256 digests:
//  1. of the decoded bytes for base64 document content
//  2. of the canonical JSON form for the fingerprint input

package evidence

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Hash calculates SHA-256 checksum (hash) and returns hex string.
func Hash(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("data is empty")
	}
	hasher := sha256.New()

	if _, err := io.Copy(hasher, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to hash data: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// HashFromBase64 decodes base64-encoded content and returns the checksum of the decoded bytes and their length.
func HashFromBase64(encoded string, maxSize int64) (string, int64, error) {
	if len(encoded) == 0 {
		return "", 0, fmt.Errorf("data is empty")
	}
	if int64(len(encoded)) > maxSize {
		return "", 0, fmt.Errorf("base64 content size (%d bytes) exceeds maximum (%d bytes)",
			len(encoded), maxSize)
	}

	// stream decode to avoid holding a second copy of large documents
	decoder := base64.NewDecoder(base64.StdEncoding, strings.NewReader(encoded))
	hasher := sha256.New()

	n, err := io.Copy(hasher, decoder)
	if err != nil {
		return "", 0, fmt.Errorf("invalid base64 content: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}

// isChecksum reports whether s is a 64 character hex string.
func isChecksum(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
