package cryptocore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/cuemby/parsec-core/pkg/types"
)

// EncryptBlob encrypts plaintext under key using AES-256-GCM, with
// the nonce prepended to the returned ciphertext. This is the at-rest
// encryption spec §1 assumes available "for symmetric encryption of
// at-rest blobs under a per-device key" — every certificate and
// manifest blob pkg/localdb stores has already passed through this
// (the indexing metadata stored beside a certificate blob is not).
func EncryptBlob(key types.SymmetricKey, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptBlob reverses EncryptBlob.
func DecryptBlob(key types.SymmetricKey, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting blob: %w", err)
	}
	return plaintext, nil
}

// DeriveDeviceKey derives a device's symmetric at-rest key from its
// passphrase-unwrapped secret material. Passphrase wrapping itself is
// out of scope (device keyfile storage, spec §1 Non-goals); this
// function only shapes whatever secret the collaborator handed back
// into a SymmetricKey.
func DeriveDeviceKey(secret []byte) (types.SymmetricKey, error) {
	if len(secret) < 32 {
		return types.SymmetricKey{}, fmt.Errorf("device secret must be at least 32 bytes, got %d", len(secret))
	}
	var key types.SymmetricKey
	copy(key[:], secret[:32])
	return key, nil
}
