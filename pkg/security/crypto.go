package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"sync"

	"collabchat/pkg/errs"
)

// Content cipher: AES-256-GCM over message text payloads at rest. Output
// is nonce|ciphertext, base64-encoded for storage inside JSON records.
// When no key is configured the cipher is disabled and Seal/Open are the
// identity; a failure while enabled always surfaces as errs.CipherFailure
// and never degrades to passing raw ciphertext through as plaintext.

var (
	keyMu sync.RWMutex
	key   []byte
)

// SetKeyHex installs the AES-256 key from a hex string. An empty string
// disables the cipher.
func SetKeyHex(hexKey string) error {
	keyMu.Lock()
	defer keyMu.Unlock()
	if hexKey == "" {
		key = nil
		return nil
	}
	b, err := hex.DecodeString(hexKey)
	if err != nil {
		return err
	}
	if len(b) != 32 {
		return errors.New("cipher key must be 32 bytes (AES-256)")
	}
	key = b
	return nil
}

// Enabled reports whether a cipher key is configured.
func Enabled() bool {
	keyMu.RLock()
	defer keyMu.RUnlock()
	return len(key) == 32
}

func currentKey() []byte {
	keyMu.RLock()
	defer keyMu.RUnlock()
	if key == nil {
		return nil
	}
	return append([]byte(nil), key...)
}

// Seal encrypts plaintext for storage. With the cipher disabled it
// returns the plaintext unchanged.
func Seal(plaintext string) (string, error) {
	k := currentKey()
	if k == nil {
		return plaintext, nil
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return "", errs.Cipher("seal: cipher init", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errs.Cipher("seal: gcm init", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errs.Cipher("seal: nonce", err)
	}
	out := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal. With the cipher disabled it
// returns the input unchanged. Undecryptable input is an error, not a
// plaintext fallback.
func Open(sealed string) (string, error) {
	k := currentKey()
	if k == nil {
		return sealed, nil
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", errs.Cipher("open: not base64", err)
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return "", errs.Cipher("open: cipher init", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errs.Cipher("open: gcm init", err)
	}
	ns := gcm.NonceSize()
	if len(raw) < ns {
		return "", errs.Cipher("open: short ciphertext", nil)
	}
	pt, err := gcm.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", errs.Cipher("open: decrypt", err)
	}
	return string(pt), nil
}
