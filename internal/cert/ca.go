package cert

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hivecom/meshsim/internal/crypto/pqc"
)

// issuerName is the fixed identity every certificate minted by this process
// carries as its issuer.
const issuerName = "HiveCom::CertificateAuthority"

// Authority is a process-wide certificate authority: one Dilithium3 signing
// key pair, used to mint and verify every certificate in the simulation.
type Authority struct {
	mu   sync.Mutex
	keys *pqc.SignatureKeyPair

	logger *slog.Logger
}

var (
	instanceOnce sync.Once
	instance     *Authority
	instanceErr  error
)

// Instance returns the process-wide certificate authority, generating its
// signing key pair on first use.
func Instance() (*Authority, error) {
	instanceOnce.Do(func() {
		keys, err := pqc.GenerateSignatureKeyPair()
		if err != nil {
			instanceErr = fmt.Errorf("cert: generate authority signing key: %w", err)
			return
		}
		instance = &Authority{
			keys:   keys,
			logger: slog.Default().With("component", "cert-authority"),
		}
	})
	return instance, instanceErr
}

// Mint signs a fresh certificate binding publicKey to this authority.
func (a *Authority) Mint(publicKey []byte) (*Certificate, error) {
	if len(publicKey) != pqc.KEMPublicKeySize {
		return nil, fmt.Errorf("cert: invalid public key size %d", len(publicKey))
	}

	version := 1
	serial := "1"
	timestamp := strconv.FormatInt(time.Now().UnixNano(), 10)

	a.mu.Lock()
	sig, err := pqc.Sign(a.keys.PrivateKey[:], []byte(signedLines(version, serial, issuerName, timestamp, publicKey)))
	a.mu.Unlock()
	if err != nil {
		a.logger.Error("certificate signing failed", "error", err)
		return nil, fmt.Errorf("cert: sign certificate: %w", err)
	}

	c := &Certificate{
		Version:    version,
		Serial:     serial,
		IssuerName: issuerName,
		Timestamp:  timestamp,
		IsValid:    true,
	}
	copy(c.PublicKey[:], publicKey)
	copy(c.Signature[:], sig)
	c.text = encode(version, serial, issuerName, timestamp, publicKey, sig)
	return c, nil
}

// Parse decodes a certificate's wire text and verifies it against this
// authority's signing key. A certificate that is malformed, carries a bad
// signature, or has expired is returned with IsValid false rather than as
// an error - the caller is expected to log and drop, not propagate a
// failure to the peer.
func (a *Authority) Parse(text string) *Certificate {
	fields, ok := parseFields(text)
	if !ok {
		a.logger.Error("malformed certificate: fewer than six fields")
		return &Certificate{text: text}
	}

	version, err := strconv.Atoi(fields[0])
	if err != nil {
		a.logger.Error("malformed certificate: invalid version", "error", err)
		return &Certificate{text: text}
	}

	serial, issuer, timestamp := fields[1], fields[2], fields[3]

	publicKey, err := base64.StdEncoding.DecodeString(fields[4])
	if err != nil {
		a.logger.Error("malformed certificate: invalid public key encoding", "error", err)
		return &Certificate{text: text}
	}

	signature, err := base64.StdEncoding.DecodeString(fields[5])
	if err != nil {
		a.logger.Error("malformed certificate: invalid signature encoding", "error", err)
		return &Certificate{text: text}
	}

	c := &Certificate{
		Version:    version,
		Serial:     serial,
		IssuerName: issuer,
		Timestamp:  timestamp,
		text:       text,
	}
	if len(publicKey) == pqc.KEMPublicKeySize {
		copy(c.PublicKey[:], publicKey)
	}
	if len(signature) == pqc.SignatureSize {
		copy(c.Signature[:], signature)
	}

	signed := []byte(signedLines(version, serial, issuer, timestamp, publicKey))
	if !pqc.Verify(a.keys.PublicKey[:], signed, signature) {
		a.logger.Error("certificate signature verification failed", "issuer", issuer, "serial", serial)
		return c
	}

	if !isPeriodValid(timestamp) {
		a.logger.Error("certificate has expired", "issuer", issuer, "serial", serial, "timestamp", timestamp)
		return c
	}

	c.IsValid = true
	return c
}
