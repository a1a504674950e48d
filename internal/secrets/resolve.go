// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"errors"
	"strings"

	"github.com/spf13/viper"

	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

const keyringScheme = "keyring://"

// IsKeyringURI reports whether value uses the keyring:// URI scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// KeyringURI formats a keyring://service/key reference.
func KeyringURI(service, key string) string {
	return keyringScheme + service + "/" + key
}

// ParseKeyringURI extracts service and key from a keyring://service/key URI.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", routeerr.Errorf(routeerr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}

	service, key, ok := strings.Cut(strings.TrimPrefix(uri, keyringScheme), "/")
	if !ok || service == "" || key == "" {
		return "", "", routeerr.Errorf(routeerr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}

	return service, key, nil
}

// ResolveKeyringURI resolves a single keyring:// URI to its secret value.
// Other values are returned unchanged.
func ResolveKeyringURI(store Store, value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}

	service, key, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}

	secret, err := store.Retrieve(service, key)
	if err != nil {
		// %v rather than %w: the resolve code must win over the store's.
		return "", routeerr.Errorf(routeerr.CodeSecretResolveFailure,
			"resolving keyring URI %q: %v", value, err)
	}

	return secret, nil
}

// ResolveViperSecrets replaces every keyring:// string value in v with the
// secret it points to. It runs after loading rather than as a decoder hook.
// Every key is attempted; unresolved keys keep their URI and are reported
// together in the returned error.
func ResolveViperSecrets(v *viper.Viper, store Store) error {
	var errs []error
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsKeyringURI(val) {
			continue
		}

		resolved, err := ResolveKeyringURI(store, val)
		if err != nil {
			errs = append(errs, routeerr.Wrapf(err, routeerr.CodeSecretResolveFailure,
				"config key %s", key))
			continue
		}

		v.Set(key, resolved)
	}
	if len(errs) > 0 {
		return routeerr.Wrapf(errors.Join(errs...), routeerr.CodeSecretResolveFailure,
			"%d secret reference(s) could not be resolved", len(errs))
	}
	return nil
}
