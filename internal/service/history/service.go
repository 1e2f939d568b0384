package history

import (
	"database/sql"
	"fmt"
)

// Service persists profiles, sessions and messages.
type Service struct {
	db     *sql.DB
	cipher *credentialCipher
}

// NewService builds a history service. The credential cipher key must be
// present in the environment so stored gateway keys are never plaintext.
func NewService(db *sql.DB) (*Service, error) {
	cipher, err := newCredentialCipherFromEnv()
	if err != nil {
		return nil, fmt.Errorf("init credential cipher: %w", err)
	}
	return &Service{db: db, cipher: cipher}, nil
}
