package history

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const credentialKeyEnv = "GUITARGPT_CREDENTIAL_KEY"

var errInvalidCiphertext = errors.New("invalid credential ciphertext")

type credentialCipher struct {
	aead cipher.AEAD
}

func newCredentialCipherFromEnv() (*credentialCipher, error) {
	raw := strings.TrimSpace(os.Getenv(credentialKeyEnv))
	if raw == "" {
		return nil, fmt.Errorf("%s not set", credentialKeyEnv)
	}
	key, err := decodeKey(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", credentialKeyEnv, err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &credentialCipher{aead: aead}, nil
}

func decodeKey(raw string) ([]byte, error) {
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid key length %d, want 32", len(key))
	}
	return key, nil
}

func (c *credentialCipher) Encrypt(plain string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	cipherText := c.aead.Seal(nil, nonce, []byte(plain), nil)
	buf := append(nonce, cipherText...)
	return base64.StdEncoding.EncodeToString(buf), nil
}

func (c *credentialCipher) Decrypt(input string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(input)
	if err != nil {
		return "", errInvalidCiphertext
	}
	ns := c.aead.NonceSize()
	if len(data) < ns {
		return "", errInvalidCiphertext
	}
	nonce := data[:ns]
	cipherText := data[ns:]
	plain, err := c.aead.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return "", errInvalidCiphertext
	}
	return string(plain), nil
}

// SetCredential stores the gateway API key for a profile/provider pair,
// encrypted at rest.
func (s *Service) SetCredential(ctx context.Context, profileID int64, provider, apiKey string) error {
	if profileID <= 0 {
		return errors.New("invalid profile id")
	}
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return errors.New("provider is required")
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.New("api key is required")
	}

	encrypted, err := s.cipher.Encrypt(apiKey)
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}
	now := time.Now().UTC()
	// Update-then-insert keeps the upsert portable across sqlite and mysql.
	res, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET api_key = ?, created_at = ? WHERE profile_id = ? AND provider = ?`,
		encrypted, now, profileID, provider,
	)
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("credential rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO credentials (profile_id, provider, api_key, created_at) VALUES (?, ?, ?, ?)`,
			profileID, provider, encrypted, now,
		); err != nil {
			return fmt.Errorf("store credential: %w", err)
		}
	}
	return nil
}

// GetCredential returns the decrypted gateway key, or "" when none is
// stored. Rows written before encryption was introduced are returned as-is.
func (s *Service) GetCredential(ctx context.Context, profileID int64, provider string) (string, error) {
	if profileID <= 0 {
		return "", errors.New("invalid profile id")
	}
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return "", errors.New("provider is required")
	}
	var stored string
	err := s.db.QueryRowContext(ctx,
		`SELECT api_key FROM credentials WHERE profile_id = ? AND provider = ? LIMIT 1`,
		profileID, provider,
	).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("lookup credential: %w", err)
	}
	plain, err := s.cipher.Decrypt(stored)
	if err != nil {
		if errors.Is(err, errInvalidCiphertext) {
			return stored, nil
		}
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	return plain, nil
}
