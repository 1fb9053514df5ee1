package hipaa

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// ErrIntegrityFailure is returned when a ciphertext fails authentication.
// The record was tampered with, or it was encrypted under a key this ring
// does not hold.
var ErrIntegrityFailure = errors.New("hipaa: ciphertext integrity check failed")

// Algorithm identifies the only AEAD this service speaks. Stored on every
// record so a future algorithm migration can tell old rows apart.
const Algorithm = "AES-256-GCM"

// EncryptedRecord is one sealed field value plus everything needed to open
// it again. Nothing in here is secret: the DEK is re-derived from the master
// key, the salt, and the field class at decryption time.
type EncryptedRecord struct {
	FieldClass string `json:"field_class"`
	Algorithm  string `json:"algorithm"`
	KeyVersion int    `json:"key_version"`
	KeySalt    []byte `json:"key_salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// FieldEncryptor seals and opens field values under per-record keys derived
// from the ring's master keys.
type FieldEncryptor struct {
	ring *KeyRing
}

func NewFieldEncryptor(ring *KeyRing) *FieldEncryptor {
	return &FieldEncryptor{ring: ring}
}

// Encrypt seals plaintext under a fresh per-record DEK. Both the salt and
// the nonce are drawn fresh from crypto/rand on every call, so encrypting
// the same plaintext twice never yields the same bytes.
func (f *FieldEncryptor) Encrypt(plaintext []byte, fieldClass string) (*EncryptedRecord, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate key salt: %w", err)
	}

	version := f.ring.CurrentVersion()
	dek, err := f.ring.DeriveDEK(version, salt, fieldClass)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(dek)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return &EncryptedRecord{
		FieldClass: fieldClass,
		Algorithm:  Algorithm,
		KeyVersion: version,
		KeySalt:    salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// Decrypt opens a sealed record. Any authentication failure, including a
// single flipped ciphertext bit, comes back as ErrIntegrityFailure.
func (f *FieldEncryptor) Decrypt(rec *EncryptedRecord) ([]byte, error) {
	if rec.Algorithm != Algorithm {
		return nil, fmt.Errorf("unsupported algorithm %q", rec.Algorithm)
	}

	dek, err := f.ring.DeriveDEK(rec.KeyVersion, rec.KeySalt, rec.FieldClass)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(dek)
	if err != nil {
		return nil, err
	}
	if len(rec.Nonce) != aead.NonceSize() {
		return nil, ErrIntegrityFailure
	}

	plaintext, err := aead.Open(nil, rec.Nonce, rec.Ciphertext, nil)
	if err != nil {
		return nil, ErrIntegrityFailure
	}
	return plaintext, nil
}

// NeedsReencryption reports whether the record was sealed under a retired
// key version.
func (f *FieldEncryptor) NeedsReencryption(rec *EncryptedRecord) bool {
	return f.ring.NeedsReencryption(rec.KeyVersion)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return aead, nil
}
