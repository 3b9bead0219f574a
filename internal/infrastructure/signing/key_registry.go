package signing

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnknownBidder    = errors.New("no public key registered for bidder")
	ErrInvalidKey       = errors.New("invalid public key")
	ErrInvalidSignature = errors.New("signature verification failed")
)

// KeyRegistry holds the registered RSA public keys of all bidders.
// Clients sign the canonical bid payload with SHA-256 / PKCS#1 v1.5;
// the registry only ever verifies.
type KeyRegistry struct {
	keys  map[string]*rsa.PublicKey
	mutex sync.RWMutex
}

func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{
		keys: make(map[string]*rsa.PublicKey),
	}
}

// Register stores the PEM-encoded public key for a bidder. Registering
// a bidder again replaces the previous key.
func (r *KeyRegistry) Register(bidderID string, publicKeyPEM []byte) error {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return fmt.Errorf("%w: not PEM encoded", ErrInvalidKey)
	}

	key, err := parsePublicKey(block)
	if err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.keys[bidderID] = key
	return nil
}

func (r *KeyRegistry) Verify(bidderID string, payload, signature []byte) error {
	r.mutex.RLock()
	key, ok := r.keys[bidderID]
	r.mutex.RUnlock()

	if !ok {
		return ErrUnknownBidder
	}

	digest := sha256.Sum256(payload)
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature); err != nil {
		return ErrInvalidSignature
	}

	return nil
}

func parsePublicKey(block *pem.Block) (*rsa.PublicKey, error) {
	// PKIX first, PKCS#1 as fallback; client tooling exports both.
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidKey)
		}
		return rsaKey, nil
	}

	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}
