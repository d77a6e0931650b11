// Package kms loads the key material of the provisioning signer and the
// intake verifier.
//
// FileKeySource reads PEM files from disk. VaultKeySource reads the same PEM
// strings from a Vault KV v2 secret with private_key and public_key fields,
// so keys can be rotated without touching the hosts.
package kms
