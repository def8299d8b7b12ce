package auth

import (
	"context"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerCredentialStore persists CHAP secrets in a BadgerDB instance, keyed
// under a dedicated "chap:" namespace so it can share a database with the
// target/LUN registry without key collisions.
type BadgerCredentialStore struct {
	db *badger.DB
}

const chapKeyPrefix = "chap:"

func chapKey(initiatorName string) []byte {
	return append([]byte(chapKeyPrefix), initiatorName...)
}

// NewBadgerCredentialStore wraps an already-opened BadgerDB handle. The
// caller owns the handle's lifecycle (open/close).
func NewBadgerCredentialStore(db *badger.DB) *BadgerCredentialStore {
	return &BadgerCredentialStore{db: db}
}

func (s *BadgerCredentialStore) Lookup(ctx context.Context, initiatorName string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	var secret string
	found := true
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chapKey(initiatorName))
		if err == badger.ErrKeyNotFound {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			secret = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, fmt.Errorf("auth: looking up CHAP secret: %w", err)
	}
	return secret, found, nil
}

func (s *BadgerCredentialStore) SetSecret(ctx context.Context, initiatorName, secret string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateSecret(secret); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chapKey(initiatorName), []byte(secret))
	})
	if err != nil {
		return fmt.Errorf("auth: storing CHAP secret: %w", err)
	}
	return nil
}

func (s *BadgerCredentialStore) DeleteSecret(ctx context.Context, initiatorName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(chapKey(initiatorName))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("auth: deleting CHAP secret: %w", err)
	}
	return nil
}
