package tron

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Deposit-address private keys rest in the database encrypted with
// AES-256-GCM under a key derived from ENCRYPTION_KEY.

func gcmFromPassphrase(passphrase string) (cipher.AEAD, error) {
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptPrivateKey encrypts a private key for storage. Output is
// hex(nonce || ciphertext).
func EncryptPrivateKey(privateKey, passphrase string) (string, error) {
	gcm, err := gcmFromPassphrase(passphrase)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(privateKey), nil)
	return hex.EncodeToString(sealed), nil
}

// DecryptPrivateKey reverses EncryptPrivateKey.
func DecryptPrivateKey(encrypted, passphrase string) (string, error) {
	gcm, err := gcmFromPassphrase(passphrase)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	data, err := hex.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(data) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt private key: %w", err)
	}
	return string(plain), nil
}
