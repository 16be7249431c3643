package pqc

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// Fixed sizes for the Dilithium3 signature scheme, matching mode3's own
// constants.
const (
	SignaturePublicKeySize  = mode3.PublicKeySize
	SignaturePrivateKeySize = mode3.PrivateKeySize
	SignatureSize           = mode3.SignatureSize
)

// SignatureKeyPair holds the certificate authority's long-lived Dilithium3
// signing key pair.
type SignatureKeyPair struct {
	PublicKey  [SignaturePublicKeySize]byte
	PrivateKey [SignaturePrivateKeySize]byte
}

// GenerateSignatureKeyPair creates a fresh Dilithium3 key pair.
func GenerateSignatureKeyPair() (*SignatureKeyPair, error) {
	pub, priv, err := mode3.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("pqc: generate signature key pair: %w", err)
	}

	kp := &SignatureKeyPair{}
	pub.Pack(kp.PublicKey[:])
	priv.Pack(kp.PrivateKey[:])
	return kp, nil
}

// Sign produces a Dilithium3 signature over message using privateKey.
func Sign(privateKey []byte, message []byte) ([]byte, error) {
	if len(privateKey) != SignaturePrivateKeySize {
		return nil, fmt.Errorf("pqc: invalid signature private key size %d", len(privateKey))
	}

	var priv mode3.PrivateKey
	priv.Unpack(privateKey)

	sig := make([]byte, SignatureSize)
	mode3.SignTo(&priv, message, sig)
	return sig, nil
}

// Verify reports whether signature is a valid Dilithium3 signature over
// message under publicKey.
func Verify(publicKey []byte, message []byte, signature []byte) bool {
	if len(publicKey) != SignaturePublicKeySize || len(signature) != SignatureSize {
		return false
	}

	var pub mode3.PublicKey
	pub.Unpack(publicKey)

	return mode3.Verify(&pub, message, signature)
}
