package hipaa

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	masterKeySize = 32
	dekSize       = 32
	saltSize      = 16
)

// KeyRing holds the versioned master keys. New records are always encrypted
// under the current version; decryption accepts any version still on the
// ring, so old records keep working while a rotation is rolled out.
type KeyRing struct {
	current int
	masters map[int][]byte
}

// NewKeyRing builds a ring with a single current master key.
func NewKeyRing(master []byte, version int) (*KeyRing, error) {
	if len(master) != masterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", masterKeySize, len(master))
	}
	if version < 1 {
		return nil, fmt.Errorf("key version must be >= 1, got %d", version)
	}
	k := &KeyRing{current: version, masters: map[int][]byte{}}
	k.masters[version] = append([]byte(nil), master...)
	return k, nil
}

// AddPrevious registers a retired master key so records written under it can
// still be decrypted.
func (k *KeyRing) AddPrevious(master []byte, version int) error {
	if len(master) != masterKeySize {
		return fmt.Errorf("master key must be %d bytes, got %d", masterKeySize, len(master))
	}
	if version >= k.current {
		return fmt.Errorf("previous key version %d must be below current version %d", version, k.current)
	}
	k.masters[version] = append([]byte(nil), master...)
	return nil
}

// CurrentVersion returns the version used for new encryptions.
func (k *KeyRing) CurrentVersion() int { return k.current }

// NeedsReencryption reports whether a record written under the given version
// should be rewritten under the current key.
func (k *KeyRing) NeedsReencryption(version int) bool {
	return version != k.current
}

// DeriveDEK derives the per-record data encryption key for one field class.
// The salt is unique per record, so two records of the same class never share
// a key, and a single compromised DEK exposes exactly one record.
func (k *KeyRing) DeriveDEK(version int, salt []byte, fieldClass string) ([]byte, error) {
	master, ok := k.masters[version]
	if !ok {
		return nil, fmt.Errorf("no master key for version %d", version)
	}
	if len(salt) != saltSize {
		return nil, fmt.Errorf("key salt must be %d bytes, got %d", saltSize, len(salt))
	}
	r := hkdf.New(sha256.New, master, salt, []byte("hms/phi/"+fieldClass))
	dek := make([]byte, dekSize)
	if _, err := io.ReadFull(r, dek); err != nil {
		return nil, fmt.Errorf("derive dek: %w", err)
	}
	return dek, nil
}
