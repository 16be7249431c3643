// Package pqc wraps the post-quantum key encapsulation mechanism, digital
// signature scheme, and AEAD cipher used to authenticate and encrypt mesh
// sessions. The concrete primitives (ML-KEM-768, Dilithium3, AES-256-GCM)
// are external collaborators: this package adapts them to the fixed sizes
// and wire conventions the rest of the simulator depends on, it does not
// reimplement them.
package pqc

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

// Fixed sizes for the ML-KEM-768 KEM, matching mlkem768's own constants.
const (
	KEMPublicKeySize    = mlkem768.PublicKeySize
	KEMPrivateKeySize   = mlkem768.PrivateKeySize
	KEMCiphertextSize   = mlkem768.CiphertextSize
	KEMSharedSecretSize = mlkem768.SharedKeySize
)

// KEMKeyPair holds a node's long-lived ML-KEM-768 key pair.
type KEMKeyPair struct {
	PublicKey  [KEMPublicKeySize]byte
	PrivateKey [KEMPrivateKeySize]byte
}

// GenerateKEMKeyPair creates a fresh ML-KEM-768 key pair for a node.
func GenerateKEMKeyPair() (*KEMKeyPair, error) {
	pub, priv, err := mlkem768.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("pqc: generate kem key pair: %w", err)
	}

	kp := &KEMKeyPair{}
	pub.Pack(kp.PublicKey[:])
	priv.Pack(kp.PrivateKey[:])
	return kp, nil
}

// Encapsulate generates a shared secret against a peer's KEM public key,
// returning the ciphertext to send them and the secret to keep locally.
func Encapsulate(peerPublicKey []byte) (ciphertext [KEMCiphertextSize]byte, sharedSecret [KEMSharedSecretSize]byte, err error) {
	if len(peerPublicKey) != KEMPublicKeySize {
		return ciphertext, sharedSecret, fmt.Errorf("pqc: invalid kem public key size %d", len(peerPublicKey))
	}

	var pub mlkem768.PublicKey
	if err := pub.Unpack(peerPublicKey); err != nil {
		return ciphertext, sharedSecret, fmt.Errorf("pqc: unpack kem public key: %w", err)
	}

	pub.EncapsulateTo(ciphertext[:], sharedSecret[:], nil)
	return ciphertext, sharedSecret, nil
}

// Decapsulate recovers the shared secret from a ciphertext using the node's
// own KEM private key.
func Decapsulate(privateKey []byte, ciphertext []byte) (sharedSecret [KEMSharedSecretSize]byte, err error) {
	if len(privateKey) != KEMPrivateKeySize {
		return sharedSecret, fmt.Errorf("pqc: invalid kem private key size %d", len(privateKey))
	}
	if len(ciphertext) != KEMCiphertextSize {
		return sharedSecret, fmt.Errorf("pqc: invalid kem ciphertext size %d", len(ciphertext))
	}

	var priv mlkem768.PrivateKey
	if err := priv.Unpack(privateKey); err != nil {
		return sharedSecret, fmt.Errorf("pqc: unpack kem private key: %w", err)
	}

	priv.DecapsulateTo(sharedSecret[:], ciphertext)
	return sharedSecret, nil
}
