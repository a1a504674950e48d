// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import "github.com/google/uuid"

// StableAccountID derives a deterministic account id from a provider id so
// accounts configured outside the account store keep the same health key
// across restarts.
//
// The bytes of providerID are XOR-folded into a 16-byte buffer and the
// version 4 / RFC 4122 variant bits are forced. This is not a hash: distinct
// ids can collide (for example two strings that differ only by bytes which
// cancel out at the same fold position).
func StableAccountID(providerID string) uuid.UUID {
	var id uuid.UUID
	for i := 0; i < len(providerID); i++ {
		id[i%16] ^= providerID[i]
	}
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}
