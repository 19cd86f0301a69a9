package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// AuthProviderRepository persists encrypted auth tokens, recovered from
// original_source/src/models/auth_provider.rs. Tokens are encrypted by the
// caller via config.TokenEncryptor before reaching this repository; it never
// sees a plaintext token.
type AuthProviderRepository struct {
	cat *Catalog
}

func NewAuthProviderRepository(cat *Catalog) *AuthProviderRepository {
	return &AuthProviderRepository{cat: cat}
}

func (r *AuthProviderRepository) Upsert(ctx context.Context, a AuthProvider) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err := r.cat.db.ExecContext(ctx, `
		INSERT INTO auth_providers (id, provider_kind, username, encrypted_token, created_at, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT (id) DO UPDATE SET
			provider_kind = excluded.provider_kind,
			username = excluded.username,
			encrypted_token = excluded.encrypted_token,
			updated_at = excluded.updated_at`,
		a.ID, a.ProviderKind, a.Username, a.EncryptedToken, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (r *AuthProviderRepository) FindByID(ctx context.Context, id string) (AuthProvider, error) {
	var a AuthProvider
	err := r.cat.db.QueryRowContext(ctx, `
		SELECT id, provider_kind, username, encrypted_token, created_at, updated_at
		FROM auth_providers WHERE id = ?`, id,
	).Scan(&a.ID, &a.ProviderKind, &a.Username, &a.EncryptedToken, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AuthProvider{}, &NotFoundError{Kind: "auth_provider", ID: id}
	}
	return a, err
}

func (r *AuthProviderRepository) Delete(ctx context.Context, id string) error {
	_, err := r.cat.db.ExecContext(ctx, `DELETE FROM auth_providers WHERE id = ?`, id)
	return err
}
