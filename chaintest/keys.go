package chaintest

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/crypto"
)

// Well-known development keys (hardhat accounts #0 and #1).
const (
	DeployerKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	HolderKeyHex   = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

func DeployerKey() *ecdsa.PrivateKey { return mustKey(DeployerKeyHex) }

func HolderKey() *ecdsa.PrivateKey { return mustKey(HolderKeyHex) }

func mustKey(h string) *ecdsa.PrivateKey {
	k, err := crypto.HexToECDSA(h)
	if err != nil {
		panic(err)
	}
	return k
}
