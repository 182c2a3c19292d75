package privacy

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const encPrefix = "enc:v1:"

var randReader io.Reader = rand.Reader

// fieldCipher seals identifiers with AES-256-GCM under a key derived per
// measurement id. The measurement id is bound as additional data.
type fieldCipher struct {
	master []byte
	aeads  sync.Map // measurement id -> cipher.AEAD
}

func newFieldCipher(b64 string) (*fieldCipher, error) {
	master, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(master) < 32 {
		return nil, errors.New("key must be at least 32 bytes")
	}
	return &fieldCipher{master: master}, nil
}

func (c *fieldCipher) aead(measurementID string) (cipher.AEAD, error) {
	if a, ok := c.aeads.Load(measurementID); ok {
		return a.(cipher.AEAD), nil
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, c.master, nil, []byte("analytics/fields/v1/"+measurementID))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	actual, _ := c.aeads.LoadOrStore(measurementID, gcm)
	return actual.(cipher.AEAD), nil
}

func (c *fieldCipher) encrypt(measurementID, plaintext string) (string, error) {
	gcm, err := c.aead(measurementID)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(randReader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), []byte(measurementID))
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *fieldCipher) decrypt(measurementID, value string) (string, error) {
	gcm, err := c.aead(measurementID)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encPrefix))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, ct := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	pt, err := gcm.Open(nil, nonce, ct, []byte(measurementID))
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

func isEncrypted(s string) bool { return strings.HasPrefix(s, encPrefix) }
