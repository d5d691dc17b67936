package master

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/sitevault/sitevault/internal/vault"
)

// Scheme names how the master secret is sealed at rest.
type Scheme string

const (
	// SchemeLegacy encrypts the secret under a fixed built-in key and stores
	// the raw cipher bytes, one byte per secret byte. The blob is reversible
	// by anyone holding this binary. Files written as UTF-8 text, where each
	// shifted byte above 0x7f takes two bytes, are not in this format.
	SchemeLegacy Scheme = "legacy"
	// SchemeArgon2id stores an Argon2id verifier in PHC string form. The
	// secret cannot be recovered from it.
	SchemeArgon2id Scheme = "argon2id"
)

// legacyKey is the fixed key of the legacy scheme.
var legacyKey = []byte("default_key")

const phcPrefix = "$argon2id$"

// ParseScheme validates a scheme name.
func ParseScheme(name string) (Scheme, error) {
	switch Scheme(name) {
	case SchemeLegacy, SchemeArgon2id:
		return Scheme(name), nil
	default:
		return "", fmt.Errorf("unknown master scheme %q (want %s or %s)", name, SchemeArgon2id, SchemeLegacy)
	}
}

// DetectScheme tells which scheme produced blob.
func DetectScheme(blob []byte) Scheme {
	if bytes.HasPrefix(blob, []byte(phcPrefix)) {
		return SchemeArgon2id
	}
	return SchemeLegacy
}

func sealLegacy(secret []byte) ([]byte, error) {
	return vault.Encrypt(secret, legacyKey)
}

func openLegacy(blob []byte) ([]byte, error) {
	return vault.Decrypt(blob, legacyKey)
}

func sealArgon2id(secret []byte, params vault.Argon2Params) ([]byte, error) {
	salt, err := vault.GenerateSalt()
	if err != nil {
		return nil, err
	}

	hash, err := vault.DeriveKey(secret, salt, params)
	if err != nil {
		return nil, fmt.Errorf("failed to derive verifier: %w", err)
	}
	defer vault.Zeroize(hash)

	phc := fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s", phcPrefix,
		argon2.Version, params.Memory, params.Iterations, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
	return []byte(phc), nil
}

// argon2Verifier is a parsed PHC string.
type argon2Verifier struct {
	params vault.Argon2Params
	salt   []byte
	hash   []byte
}

func parseArgon2id(blob []byte) (*argon2Verifier, error) {
	// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
	parts := strings.Split(string(blob), "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, fmt.Errorf("%w: malformed argon2id verifier", ErrCorruptMaster)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported argon2 version %q", ErrCorruptMaster, parts[2])
	}

	var v argon2Verifier
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &v.params.Memory, &v.params.Iterations, &v.params.Parallelism); err != nil {
		return nil, fmt.Errorf("%w: bad argon2 parameters %q", ErrCorruptMaster, parts[3])
	}
	if err := vault.ValidateArgon2Params(v.params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptMaster, err)
	}

	var err error
	if v.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(v.salt) == 0 {
		return nil, fmt.Errorf("%w: bad salt encoding", ErrCorruptMaster)
	}
	if v.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(v.hash) == 0 {
		return nil, fmt.Errorf("%w: bad hash encoding", ErrCorruptMaster)
	}
	return &v, nil
}

func (v *argon2Verifier) matches(candidate []byte) bool {
	derived, err := vault.DeriveKey(candidate, v.salt, v.params)
	if err != nil {
		return false
	}
	defer vault.Zeroize(derived)

	if len(derived) != len(v.hash) {
		return false
	}
	return vault.SecureCompare(derived, v.hash)
}
