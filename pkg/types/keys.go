package types

// VerifyKey is an ed25519 public key used to check a device's
// detached signatures.
type VerifyKey [32]byte

// SigningKey is an ed25519 private key used to produce detached
// signatures. It is never persisted by this core; device keyfile
// management is an external collaborator (see pkg/cryptocore).
type SigningKey [64]byte

// SymmetricKey wraps the per-device key used to encrypt at-rest
// blobs (certificates and manifests) before they reach pkg/localdb.
type SymmetricKey [32]byte
