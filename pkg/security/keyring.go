package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/hengadev/errsx"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	masterKeySize = 32
	minSaltLength = 16
)

// Argon2Params tunes the passphrase KDF.
type Argon2Params struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
}

// DefaultArgon2Params returns recommended parameters for Argon2id.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024, // 64MB
		Iterations:  3,
		Parallelism: 2,
	}
}

func (p Argon2Params) Validate() error {
	var errs errsx.Map
	if p.Memory < 8*1024 {
		errs.Set("memory", "must be at least 8192 KiB")
	}
	if p.Iterations < 1 {
		errs.Set("iterations", "must be at least 1")
	}
	if p.Parallelism < 1 {
		errs.Set("parallelism", "must be at least 1")
	}
	return errs.AsError()
}

// Keyring holds the subkeys derived from the master secret. It is immutable
// once built and safe for concurrent use.
type Keyring struct {
	encKey []byte
	macKey []byte
}

// DeriveKeyring runs Argon2id over passphrase and salt to produce the master key.
func DeriveKeyring(passphrase, salt string, params Argon2Params) (*Keyring, error) {
	var errs errsx.Map
	if passphrase == "" {
		errs.Set("passphrase", "is required")
	}
	if len(salt) < minSaltLength {
		errs.Set("salt", fmt.Sprintf("must be at least %d bytes", minSaltLength))
	}
	if err := params.Validate(); err != nil {
		errs.Set("argon2", err)
	}
	if err := errs.AsError(); err != nil {
		return nil, err
	}

	master := argon2.IDKey([]byte(passphrase), []byte(salt), params.Iterations, params.Memory, params.Parallelism, masterKeySize)
	return expand(master)
}

// KeyringFromHex accepts a raw 32-byte master key encoded as 64 hex characters.
func KeyringFromHex(keyHex string) (*Keyring, error) {
	master, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	if len(master) != masterKeySize {
		return nil, ErrInvalidKeySize
	}
	return expand(master)
}

func expand(master []byte) (*Keyring, error) {
	r := hkdf.New(sha256.New, master, nil, []byte("medrecord-api record payload v1"))

	enc := make([]byte, 32)
	mac := make([]byte, 32)
	if _, err := io.ReadFull(r, enc); err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}
	if _, err := io.ReadFull(r, mac); err != nil {
		return nil, fmt.Errorf("derive mac key: %w", err)
	}
	return &Keyring{encKey: enc, macKey: mac}, nil
}
