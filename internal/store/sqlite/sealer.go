package sqlite

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/vovakirdan/marketchat/internal/store"
)

const sealedPrefix = "secretbox:"

// sealer encrypts values with NaCl secretbox under a key derived from the configured secret.
// A nil sealer stores values in the clear.
type sealer struct {
	key [32]byte
}

func newSealer(secret string) *sealer {
	if secret == "" {
		return nil
	}
	return &sealer{key: sha256.Sum256([]byte(secret))}
}

func (s *sealer) seal(plain string) (string, error) {
	if s == nil {
		return plain, nil
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(box), nil
}

func (s *sealer) open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if s == nil {
		return "", store.ErrLocked
	}
	box, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	if len(box) < 24 {
		return "", errors.New("sealed value too short")
	}
	var nonce [24]byte
	copy(nonce[:], box[:24])
	plain, ok := secretbox.Open(nil, box[24:], &nonce, &s.key)
	if !ok {
		return "", errors.New("wrong state_secret or corrupted value")
	}
	return string(plain), nil
}
