package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// We don't want to keep provider tokens as plain text in the config or logs.
// Since the output of this function identifies the provider we cannot use
// salts here. The tokens are generated random strings, so a plain hash is
// a reasonable trade-off.
func HashAPIKey(arg string) string {
	sum := sha256.Sum256([]byte(arg))
	return hex.EncodeToString(sum[:])
}
