package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CreateAccount inserts a new account. A duplicate name surfaces as a
// uniqueness violation.
func (s *Store) CreateAccount(ctx context.Context, name string, password *string) (*Account, error) {
	now := time.Now().UTC()
	var account Account
	err := s.db.GetContext(ctx, &account,
		`INSERT INTO account (id, name, password, updated_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING *`,
		uuid.New(), name, password, now, now,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccountByID returns the account with the given id or ErrNotFound.
func (s *Store) GetAccountByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	var account Account
	err := s.db.GetContext(ctx, &account, `SELECT * FROM account WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

// GetAccountByName returns the account with the given name or ErrNotFound.
func (s *Store) GetAccountByName(ctx context.Context, name string) (*Account, error) {
	var account Account
	err := s.db.GetContext(ctx, &account, `SELECT * FROM account WHERE name = $1`, name)
	if err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

// ListAccounts returns all accounts.
func (s *Store) ListAccounts(ctx context.Context) ([]Account, error) {
	accounts := []Account{}
	if err := s.db.SelectContext(ctx, &accounts, `SELECT * FROM account`); err != nil {
		return nil, err
	}
	return accounts, nil
}

// DeleteAccount removes an account. SSH keys, services and sessions cascade.
func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM account WHERE id = $1`, id)
	return err
}

// CreateSSHKey registers a public key for an account. The fingerprint must
// already be derived from the key.
func (s *Store) CreateSSHKey(ctx context.Context, accountID uuid.UUID, fingerprint, publicKey string) (*AccountSSHKey, error) {
	now := time.Now().UTC()
	var key AccountSSHKey
	err := s.db.GetContext(ctx, &key,
		`INSERT INTO account_ssh_key (id, key_fingerprint, ssh_key, account_id, updated_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING *`,
		uuid.New(), fingerprint, publicKey, accountID, now, now,
	)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// GetSSHKeyByFingerprint resolves a fingerprint to its registered key.
func (s *Store) GetSSHKeyByFingerprint(ctx context.Context, fingerprint string) (*AccountSSHKey, error) {
	var key AccountSSHKey
	err := s.db.GetContext(ctx, &key,
		`SELECT * FROM account_ssh_key WHERE key_fingerprint = $1`, fingerprint)
	if err != nil {
		return nil, notFound(err)
	}
	return &key, nil
}

// ListSSHKeysByAccount returns all keys registered for an account.
func (s *Store) ListSSHKeysByAccount(ctx context.Context, accountID uuid.UUID) ([]AccountSSHKey, error) {
	keys := []AccountSSHKey{}
	err := s.db.SelectContext(ctx, &keys,
		`SELECT * FROM account_ssh_key WHERE account_id = $1`, accountID)
	if err != nil {
		return nil, err
	}
	return keys, nil
}
