package keys

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrNoSource        = errors.New("keys: no key source configured")
	ErrAmbiguousSource = errors.New("keys: both a hex key and a keystore file are configured")
	ErrAddressMismatch = errors.New("keys: key does not match the expected address")
)

// Source names where the operator key lives.
type Source struct {
	Hex          string
	KeystoreFile string
	PasswordFile string
	// Expected, when set, must equal the key's address.
	Expected string
}

func (s Source) Empty() bool {
	return strings.TrimSpace(s.Hex) == "" && s.KeystoreFile == ""
}

// Load resolves s to a private key and its address.
func Load(s Source) (*ecdsa.PrivateKey, common.Address, error) {
	var (
		key *ecdsa.PrivateKey
		err error
	)
	hex := strings.TrimSpace(s.Hex)
	switch {
	case hex != "" && s.KeystoreFile != "":
		return nil, common.Address{}, ErrAmbiguousSource
	case hex != "":
		key, err = ParseHex(hex)
	case s.KeystoreFile != "":
		key, err = LoadKeystore(s.KeystoreFile, s.PasswordFile)
	default:
		return nil, common.Address{}, ErrNoSource
	}
	if err != nil {
		return nil, common.Address{}, err
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	if s.Expected != "" {
		if err := CheckAddress(addr, s.Expected); err != nil {
			return nil, common.Address{}, err
		}
	}
	return key, addr, nil
}

// ParseHex accepts a 32-byte hex key with or without 0x.
func ParseHex(v string) (*ecdsa.PrivateKey, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "0x")
	key, err := crypto.HexToECDSA(v)
	if err != nil {
		return nil, fmt.Errorf("keys: parse private key: %w", err)
	}
	return key, nil
}

// LoadKeystore decrypts a keystore v3 file. The password file's trailing
// newline is ignored.
func LoadKeystore(path, passwordFile string) (*ecdsa.PrivateKey, error) {
	if passwordFile == "" {
		return nil, fmt.Errorf("keys: keystore %s needs a password file", path)
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keys: read keystore: %w", err)
	}
	pw, err := os.ReadFile(passwordFile)
	if err != nil {
		return nil, fmt.Errorf("keys: read password file: %w", err)
	}
	k, err := keystore.DecryptKey(blob, strings.TrimRight(string(pw), "\r\n"))
	if err != nil {
		return nil, fmt.Errorf("keys: decrypt %s: %w", path, err)
	}
	return k.PrivateKey, nil
}

func CheckAddress(got common.Address, expected string) error {
	if !common.IsHexAddress(expected) {
		return fmt.Errorf("keys: expected address %q is not an address", expected)
	}
	if want := common.HexToAddress(expected); want != got {
		return fmt.Errorf("%w: have %s, want %s", ErrAddressMismatch, got.Hex(), want.Hex())
	}
	return nil
}
