// Package captcha derives the confirmation token that must accompany any
// destructive instruction. The token is a deterministic function of the
// device identity, so the caller has to prove they looked at the right
// device before wiping it.
package captcha

import (
	"strings"

	"github.com/google/uuid"
)

// Fixed namespace for token derivation. Changing it invalidates every token
// users have already looked up.
var namespace = uuid.MustParse("86d6f2cc-5b0b-4d30-9f0c-6a2d1e9b7c41")

// TokenLen is the number of hex characters in a token.
const TokenLen = 8

// Calculate returns the expected token for a device identity string.
func Calculate(identity string) string {
	u := uuid.NewSHA1(namespace, []byte(identity))
	return strings.ReplaceAll(u.String(), "-", "")[:TokenLen]
}

// Verify reports whether the supplied token matches the device identity.
func Verify(identity, supplied string) bool {
	return supplied != "" && supplied == Calculate(identity)
}
