package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const gcmIVSize = 16

// EncryptToken encrypts plaintext with AES-256-GCM under a 32-byte key and
// returns ivHex:cipherHex:tagHex. Only preferences tokens go through here;
// validation always uses the one-way hash, never this ciphertext.
func EncryptToken(key []byte, plaintext string) (string, error) {
	if len(key) != 32 {
		return "", fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	aesgcm, err := cipher.NewGCMWithNonceSize(block, gcmIVSize)
	if err != nil {
		return "", err
	}

	iv := make([]byte, gcmIVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	sealed := aesgcm.Seal(nil, iv, []byte(plaintext), nil)
	tagAt := len(sealed) - aesgcm.Overhead()
	ciphertext, tag := sealed[:tagAt], sealed[tagAt:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext) + ":" + hex.EncodeToString(tag), nil
}

// DecryptToken reverses EncryptToken. An authentication tag mismatch is
// reported as ErrCipherIntegrity, never as silently corrupted plaintext.
func DecryptToken(key []byte, encrypted string) (string, error) {
	if len(key) != 32 {
		return "", fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	parts := strings.Split(encrypted, ":")
	if len(parts) != 3 {
		return "", errors.New("malformed encrypted token")
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != gcmIVSize {
		return "", errors.New("malformed encrypted token")
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", errors.New("malformed encrypted token")
	}
	tag, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", errors.New("malformed encrypted token")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	aesgcm, err := cipher.NewGCMWithNonceSize(block, gcmIVSize)
	if err != nil {
		return "", err
	}

	plaintext, err := aesgcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrCipherIntegrity
	}

	return string(plaintext), nil
}
