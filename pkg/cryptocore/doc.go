/*
Package cryptocore implements the Crypto collaborator named in spec
§2 ("external collaborators supplying bytes-in/bytes-out: LocalDB,
ServerClient, Crypto") and specified loosely in §1 as the
load_signed/dump_sign wire-format primitives plus symmetric
encryption of at-rest blobs.

Certificate signing uses ed25519 (crypto/ed25519): each certificate is
a detached signature over a canonical JSON payload, not an X.509 leaf
in a chain-of-trust, so there is no certificate chain to walk the way
pkg/security/ca.go in the teacher repo walks one for mTLS. At-rest
blob encryption is AES-256-GCM with the nonce prepended to the
ciphertext, carried over from the teacher's pkg/security/secrets.go
almost unchanged.
*/
package cryptocore
