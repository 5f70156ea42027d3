// Package util holds small helpers shared across the service.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random 128-bit identifier rendered as hex, namespaced
// with a short table prefix ("cli", "prj", "qnr", "prop", ...). An empty
// prefix yields bare hex, used for opaque secrets such as refresh tokens.
func NewID(prefix string) string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
