package tokenstore

import (
	"context"
	"fmt"
)

// Encryptor encrypts and decrypts token values.
type Encryptor interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// EncryptedStore wraps a TokenStore so that only ciphertext reaches the backend.
// IssuedAt is stored in the clear.
type EncryptedStore struct {
	next      TokenStore
	encryptor Encryptor
}

// Compile-time check to ensure EncryptedStore implements TokenStore
var _ TokenStore = (*EncryptedStore)(nil)

// NewEncryptedStore wraps next with the given encryptor.
func NewEncryptedStore(next TokenStore, encryptor Encryptor) (*EncryptedStore, error) {
	if next == nil {
		return nil, fmt.Errorf("missing token store")
	}
	if encryptor == nil {
		return nil, fmt.Errorf("missing encryptor")
	}
	return &EncryptedStore{next: next, encryptor: encryptor}, nil
}

func (e *EncryptedStore) Read(ctx context.Context) (RefreshToken, error) {
	token, err := e.next.Read(ctx)
	if err != nil {
		return RefreshToken{}, err
	}

	plaintext, err := e.encryptor.Decrypt(ctx, token.Value)
	if err != nil {
		return RefreshToken{}, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	token.Value = plaintext
	return token, nil
}

func (e *EncryptedStore) Write(ctx context.Context, token RefreshToken) error {
	ciphertext, err := e.encryptor.Encrypt(ctx, token.Value)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	token.Value = ciphertext
	return e.next.Write(ctx, token)
}
