// Package keys loads the operator's secp256k1 signing key.
//
// A key comes from exactly one source: a hex string, or a go-ethereum
// keystore file unlocked with a password file. When an expected address
// is given, the loaded key must match it.
package keys
