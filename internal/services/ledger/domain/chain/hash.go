package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/oversight/internal/platform/errors"
)

// Hasher reduces a canonical record string to a fixed-width hex digest.
type Hasher interface {
	// Name identifies the hasher in configuration and stored metadata.
	Name() string
	// Sum returns the lowercase hex digest of canonical.
	Sum(canonical string) string
	// Genesis returns the all-zero hash used as the first record's
	// previous hash.
	Genesis() string
}

// Hasher names accepted by HasherByName.
const (
	HasherRolling = "rolling"
	HasherSHA256  = "sha256"
)

// GenesisHash is the genesis value of the default rolling hasher.
const GenesisHash = "00000000"

// Rolling is the default hasher: a 32-bit multiply-by-31 rolling checksum.
// It detects accidental corruption but is trivially forgeable.
var Rolling Hasher = rollingHasher{}

// SHA256 is a collision-resistant alternative for deployments that need
// tamper evidence against someone with write access to storage.
var SHA256 Hasher = sha256Hasher{}

type rollingHasher struct{}

func (rollingHasher) Name() string { return HasherRolling }

func (rollingHasher) Sum(canonical string) string { return RollingHash(canonical) }

func (rollingHasher) Genesis() string { return GenesisHash }

type sha256Hasher struct{}

func (sha256Hasher) Name() string { return HasherSHA256 }

func (sha256Hasher) Sum(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func (sha256Hasher) Genesis() string { return strings.Repeat("0", sha256.Size*2) }

// RollingHash computes h = h*31 + b over the UTF-8 bytes of s with uint32
// wraparound and renders it as 8 lowercase hex digits. The fold runs per
// byte, not per rune: a non-ASCII character contributes every byte of its
// encoding, so "é" hashes as 0xC3 then 0xA9.
func RollingHash(s string) string {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return fmt.Sprintf("%08x", h)
}

// HasherByName resolves a configured hasher name. An empty name selects the
// rolling hasher.
func HasherByName(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", HasherRolling:
		return Rolling, nil
	case HasherSHA256:
		return SHA256, nil
	default:
		return nil, apperrors.WithMetadata(
			apperrors.CodeInvalidInput,
			fmt.Sprintf("unknown hasher %q", name),
			map[string]string{"field": "hasher", "reason": "must be rolling or sha256"},
		)
	}
}

// ChainHash canonicalizes fields and reduces them with h.
func ChainHash(h Hasher, fields []Field) string {
	return h.Sum(Canonical(fields))
}
