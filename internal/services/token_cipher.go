package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"newsletter/internal/infra"
	"newsletter/pkg/utils"
)

// TokenCipher reversibly encrypts preferences-token plaintext for the
// support recovery path. Validation never touches the ciphertext; lookups
// always go through the one-way hash.
type TokenCipher interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

type secretTokenCipher struct {
	secrets    infra.SecretStore
	secretName string
}

func NewSecretTokenCipher(secrets infra.SecretStore) TokenCipher {
	name := os.Getenv("ENCRYPTION_SECRET_NAME")
	if name == "" {
		name = "newsletter/encryption"
	}
	return &secretTokenCipher{
		secrets:    secrets,
		secretName: name,
	}
}

func (c *secretTokenCipher) key(ctx context.Context) ([]byte, error) {
	bundle, err := c.secrets.Get(ctx, c.secretName)
	if err != nil {
		return nil, err
	}

	keyHex, ok := bundle["ENCRYPTION_KEY"]
	if !ok {
		return nil, fmt.Errorf("secret %q has no ENCRYPTION_KEY", c.secretName)
	}

	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decode ENCRYPTION_KEY: %w", err)
	}
	return key, nil
}

func (c *secretTokenCipher) Encrypt(ctx context.Context, plaintext string) (string, error) {
	key, err := c.key(ctx)
	if err != nil {
		return "", err
	}
	return utils.EncryptToken(key, plaintext)
}

func (c *secretTokenCipher) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	key, err := c.key(ctx)
	if err != nil {
		return "", err
	}
	return utils.DecryptToken(key, ciphertext)
}
