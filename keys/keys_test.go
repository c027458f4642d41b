package keys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hardhat0     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	hardhat0Addr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestLoad_Hex(t *testing.T) {
	for _, in := range []string{hardhat0, "0x" + hardhat0, " 0x" + hardhat0 + "\n"} {
		_, addr, err := Load(Source{Hex: in})
		require.NoError(t, err, in)
		assert.Equal(t, hardhat0Addr, addr.Hex())
	}
}

func TestLoad_HexInvalid(t *testing.T) {
	_, _, err := Load(Source{Hex: "0x1234"})
	require.ErrorContains(t, err, "parse private key")
}

func TestLoad_Expected(t *testing.T) {
	_, _, err := Load(Source{Hex: hardhat0, Expected: "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"})
	require.NoError(t, err)

	_, _, err = Load(Source{Hex: hardhat0, Expected: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"})
	require.ErrorIs(t, err, ErrAddressMismatch)

	_, _, err = Load(Source{Hex: hardhat0, Expected: "nope"})
	require.Error(t, err)
}

func TestLoad_Sources(t *testing.T) {
	_, _, err := Load(Source{})
	require.ErrorIs(t, err, ErrNoSource)
	assert.True(t, Source{Hex: "  "}.Empty())

	_, _, err = Load(Source{Hex: hardhat0, KeystoreFile: "k.json"})
	require.ErrorIs(t, err, ErrAmbiguousSource)
}

func writeKeystore(t *testing.T, password string) string {
	t.Helper()
	priv, err := crypto.HexToECDSA(hardhat0)
	require.NoError(t, err)
	blob, err := keystore.EncryptKey(&keystore.Key{
		Address:    crypto.PubkeyToAddress(priv.PublicKey),
		PrivateKey: priv,
	}, password, keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "operator.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))
	return path
}

func TestLoad_Keystore(t *testing.T) {
	ks := writeKeystore(t, "hunter2")
	pw := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(pw, []byte("hunter2\n"), 0o600))

	_, addr, err := Load(Source{KeystoreFile: ks, PasswordFile: pw, Expected: hardhat0Addr})
	require.NoError(t, err)
	assert.Equal(t, hardhat0Addr, addr.Hex())
}

func TestLoad_KeystoreWrongPassword(t *testing.T) {
	ks := writeKeystore(t, "hunter2")
	pw := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(pw, []byte("hunter3"), 0o600))

	_, _, err := Load(Source{KeystoreFile: ks, PasswordFile: pw})
	require.ErrorIs(t, err, keystore.ErrDecrypt)
}

func TestLoad_KeystoreNeedsPassword(t *testing.T) {
	_, _, err := Load(Source{KeystoreFile: writeKeystore(t, "x")})
	require.ErrorContains(t, err, "password file")
}
