// Package localdb implements the LocalDB collaborator named in spec
// §6.1: durable, per-device storage of the encrypted certificate log
// and encrypted manifest blobs. Nothing in here ever sees plaintext —
// encryption/decryption is the caller's job (pkg/cryptocore).
package localdb
