package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memConfigStore struct {
	entries map[string]*ConfigEntry
}

func newMemConfigStore() *memConfigStore {
	return &memConfigStore{entries: make(map[string]*ConfigEntry)}
}

func (s *memConfigStore) Get(_ context.Context, key string) (*ConfigEntry, error) {
	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return entry, nil
}

func (s *memConfigStore) Set(_ context.Context, key string, value []byte) error {
	s.entries[key] = &ConfigEntry{Key: key, Value: value}
	return nil
}

func (s *memConfigStore) Delete(_ context.Context, key string) error {
	delete(s.entries, key)
	return nil
}

func newCredentialStore() *Store {
	return &Store{ConfigStore: newMemConfigStore()}
}

func TestCredentialsPlainRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := newCredentialStore()

	bundle := CredentialBundle{"openai": "sk-abc", "anthropic": "ak-def"}
	require.NoError(t, s.SetCredentials(ctx, bundle, ""))

	got, err := s.GetCredentials(ctx, "")
	require.NoError(t, err)
	require.Equal(t, bundle, got)
}

func TestCredentialsEncryptedRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := newCredentialStore()

	bundle := CredentialBundle{"gemini": "g-xyz"}
	require.NoError(t, s.SetCredentials(ctx, bundle, "hunter2"))

	// The persisted payload must not leak the secret.
	entry, err := s.ConfigStore.Get(ctx, credentialsConfigKey)
	require.NoError(t, err)
	require.NotContains(t, string(entry.Value), "g-xyz")

	got, err := s.GetCredentials(ctx, "hunter2")
	require.NoError(t, err)
	require.Equal(t, bundle, got)
}

func TestCredentialsWrongPassphrase(t *testing.T) {
	ctx := context.Background()
	s := newCredentialStore()

	require.NoError(t, s.SetCredentials(ctx, CredentialBundle{"openai": "sk"}, "right"))

	_, err := s.GetCredentials(ctx, "wrong")
	require.ErrorIs(t, err, ErrInvalidPassphrase)
}

func TestCredentialsMissingBundle(t *testing.T) {
	s := newCredentialStore()

	got, err := s.GetCredentials(context.Background(), "any")
	require.NoError(t, err)
	require.Empty(t, got)
}
