// JSON is canonicalized per RFC 8785 before hashing so key order and whitespace never change a fingerprint.
// this implementation uses the gowebpki/jcs library to perform this canonicalization

package evidence

import (
	"github.com/gowebpki/jcs"
)

// CanonicalizeJSON converts JSON to canonical form per RFC 8785.
//
// If the input is not valid JSON, an error is returned (handled by jcs library).
func CanonicalizeJSON(jsonData []byte) ([]byte, error) {
	return jcs.Transform(jsonData)
}
