package storage

import "github.com/and161185/medrec/internal/crypto/clientcrypto"

// Sealed encrypts records before handing them to the wrapped Storage.
// The storage key is bound as additional data, so a record cannot be moved to another key.
type Sealed struct {
	Storage
	sealer *clientcrypto.Sealer
}

// NewSealed wraps inner with passphrase-based sealing.
func NewSealed(inner Storage, passphrase string) *Sealed {
	return &Sealed{Storage: inner, sealer: clientcrypto.NewSealer(passphrase)}
}

func (s *Sealed) Load(key string) ([]byte, error) {
	blob, err := s.Storage.Load(key)
	if err != nil {
		return nil, err
	}
	return s.sealer.Open(blob, []byte(key))
}

func (s *Sealed) Save(key string, value []byte) error {
	blob, err := s.sealer.Seal(value, []byte(key))
	if err != nil {
		return err
	}
	return s.Storage.Save(key, blob)
}
