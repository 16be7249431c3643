// Package cert implements the mesh's identity certificates and the
// certificate authority that mints and verifies them.
package cert

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hivecom/meshsim/internal/crypto/pqc"
)

// ValidityPeriodMonths is how long a minted certificate remains valid,
// measured from its timestamp.
const ValidityPeriodMonths = 6

// Certificate is the mesh's textual identity document: a node's public key
// bound to an issuer, a serial number, and a timestamp, signed by the
// certificate authority's Dilithium3 key.
type Certificate struct {
	Version    int
	Serial     string
	IssuerName string
	Timestamp  string
	PublicKey  [pqc.KEMPublicKeySize]byte
	Signature  [pqc.SignatureSize]byte

	// IsValid reports whether the certificate parsed cleanly, verified
	// against the authority's signing key, and falls within its validity
	// window. A certificate that fails any of those checks still carries
	// whatever fields could be recovered, with IsValid false.
	IsValid bool

	text string
}

// Text returns the certificate's six-line wire encoding.
func (c *Certificate) Text() string {
	return c.text
}

// Fingerprint returns a hex-encoded SHA-256 digest of the certificate's
// public key, for log correlation. It carries no trust meaning of its own.
func (c *Certificate) Fingerprint() string {
	sum := sha256.Sum256(c.PublicKey[:])
	return hex.EncodeToString(sum[:])
}

// signedLines returns the first five lines of the wire encoding, each
// terminated with a newline, which is exactly the byte range the authority
// signs.
func signedLines(version int, serial, issuerName, timestamp string, publicKey []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\n", version)
	fmt.Fprintf(&b, "%s\n", serial)
	fmt.Fprintf(&b, "%s\n", issuerName)
	fmt.Fprintf(&b, "%s\n", timestamp)
	fmt.Fprintf(&b, "%s\n", base64.StdEncoding.EncodeToString(publicKey))
	return b.String()
}

// encode assembles the full six-line wire encoding from its fields and a
// signature over the first five lines.
func encode(version int, serial, issuerName, timestamp string, publicKey []byte, signature []byte) string {
	return signedLines(version, serial, issuerName, timestamp, publicKey) +
		base64.StdEncoding.EncodeToString(signature) + "\n"
}

// isPeriodValid reports whether timestamp (nanoseconds since the Unix
// epoch, as decimal text) is within ValidityPeriodMonths of now.
func isPeriodValid(timestamp string) bool {
	nanos, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	issued := time.Unix(0, nanos)
	cutoff := time.Now().AddDate(0, -ValidityPeriodMonths, 0)
	return issued.After(cutoff)
}

// parseFields splits a certificate's wire text into its six expected
// fields. A certificate with fewer than six non-empty lines is malformed.
func parseFields(text string) ([6]string, bool) {
	var fields [6]string

	lines := strings.Split(text, "\n")
	n := 0
	for _, line := range lines {
		if line == "" {
			continue
		}
		if n == len(fields) {
			break
		}
		fields[n] = line
		n++
	}

	return fields, n == len(fields)
}
