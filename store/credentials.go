package store

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// credentialsConfigKey is the config-store key the credential bundle is
// persisted under.
const credentialsConfigKey = "credentials"

// CredentialBundle maps a provider ID to its API secret.
type CredentialBundle map[string]string

// SetCredentials persists the bundle. With a non-empty passphrase the bundle
// is sealed into an encrypted envelope; otherwise it is stored in plain form.
func (s *Store) SetCredentials(ctx context.Context, bundle CredentialBundle, passphrase string) error {
	plaintext, err := json.Marshal(bundle)
	if err != nil {
		return errors.Wrap(err, "failed to marshal credential bundle")
	}

	var payload []byte
	if passphrase == "" {
		payload = plaintext
	} else {
		env, err := Encrypt(plaintext, passphrase)
		if err != nil {
			return err
		}
		payload, err = json.Marshal(env)
		if err != nil {
			return errors.Wrap(err, "failed to marshal credential envelope")
		}
	}

	return s.ConfigStore.Set(ctx, credentialsConfigKey, payload)
}

// GetCredentials loads the bundle, decrypting it when it was stored
// encrypted. A missing bundle yields an empty map. Decryption failure
// surfaces as ErrInvalidPassphrase.
func (s *Store) GetCredentials(ctx context.Context, passphrase string) (CredentialBundle, error) {
	entry, err := s.ConfigStore.Get(ctx, credentialsConfigKey)
	if errors.Is(err, ErrNotFound) {
		return CredentialBundle{}, nil
	}
	if err != nil {
		return nil, err
	}

	payload := entry.Value
	var env Envelope
	if err := json.Unmarshal(payload, &env); err == nil && env.Encrypted {
		payload, err = Decrypt(&env, passphrase)
		if err != nil {
			return nil, err
		}
	}

	var bundle CredentialBundle
	if err := json.Unmarshal(payload, &bundle); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal credential bundle")
	}
	return bundle, nil
}
