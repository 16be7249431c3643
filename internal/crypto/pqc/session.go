package pqc

// SessionKey is the symmetric channel key established with a single peer.
// Per the protocol, Key is the raw KEM shared secret with no derivation
// step applied.
type SessionKey struct {
	PeerID string
	Key    [AEADKeySize]byte
}

// NewSessionKey wraps a shared secret obtained from Encapsulate or
// Decapsulate into a SessionKey for peerID.
func NewSessionKey(peerID string, sharedSecret [KEMSharedSecretSize]byte) *SessionKey {
	return &SessionKey{PeerID: peerID, Key: sharedSecret}
}

// Seal encrypts plaintext under this session's key.
func (s *SessionKey) Seal(plaintext []byte) ([]byte, error) {
	return Encrypt(s.Key[:], plaintext)
}

// Open decrypts ciphertext produced by Seal.
func (s *SessionKey) Open(ciphertext []byte) ([]byte, error) {
	return Decrypt(s.Key[:], ciphertext)
}
