package cascade

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeyPrefix is the scheme tag every CAS key carries.
const KeyPrefix = "sha256:"

// Key is a content address: "sha256:" followed by 64 lowercase hex characters.
type Key string

// NewKey computes the content address of ba.
func NewKey(ba []byte) Key {
	d := sha256.Sum256(ba)
	return KeyFromDigest(d)
}

// KeyFromDigest formats a raw 32-byte digest as a Key.
func KeyFromDigest(d [32]byte) Key {
	return Key(KeyPrefix + hex.EncodeToString(d[:]))
}

// ParseKey validates s as a CAS key and returns it.
func ParseKey(s string) (Key, error) {
	if !strings.HasPrefix(s, KeyPrefix) {
		return "", Error{Code: MalformedRequest, Err: fmt.Errorf("key %q lacks the %q prefix", s, KeyPrefix)}
	}
	h := s[len(KeyPrefix):]
	if len(h) != 64 {
		return "", Error{Code: MalformedRequest, Err: fmt.Errorf("key %q hex part is %d chars, want 64", s, len(h))}
	}
	for _, c := range h {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", Error{Code: MalformedRequest, Err: fmt.Errorf("key %q contains non lowercase-hex character %q", s, c)}
		}
	}
	return Key(s), nil
}

// Hex returns the 64-character hex part of the key.
func (k Key) Hex() string {
	return strings.TrimPrefix(string(k), KeyPrefix)
}

// Digest returns the raw 32-byte digest of the key.
func (k Key) Digest() ([32]byte, error) {
	var d [32]byte
	ba, err := hex.DecodeString(k.Hex())
	if err != nil || len(ba) != 32 {
		return d, Error{Code: MalformedRequest, Err: fmt.Errorf("key %q is not a valid digest", string(k))}
	}
	copy(d[:], ba)
	return d, nil
}

// String returns the canonical string form.
func (k Key) String() string {
	return string(k)
}

// IsNil reports whether the key is empty.
func (k Key) IsNil() bool {
	return k == ""
}
