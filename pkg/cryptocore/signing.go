package cryptocore

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/cuemby/parsec-core/pkg/types"
)

// GenerateSigningKey creates a fresh ed25519 keypair for a new device.
func GenerateSigningKey() (types.SigningKey, types.VerifyKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return types.SigningKey{}, types.VerifyKey{}, fmt.Errorf("generating signing key: %w", err)
	}
	var sk types.SigningKey
	var vk types.VerifyKey
	copy(sk[:], priv)
	copy(vk[:], pub)
	return sk, vk, nil
}

// envelope is the on-the-wire layout: a detached ed25519 signature
// followed by the JSON-encoded payload. It intentionally carries no
// certificate-kind tag of its own — the kind is a field inside the
// payload, decided by the caller who knows which topic it asked for.
type envelope struct {
	Signature [ed25519.SignatureSize]byte
	Payload   []byte
}

// DumpSign serializes payload as canonical JSON and produces a
// detached ed25519 signature over it, matching spec §1's
// "dump_sign(certificate, signing_key) -> bytes" primitive.
func DumpSign(payload any, signingKey types.SigningKey) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding certificate payload: %w", err)
	}
	sig := ed25519.Sign(ed25519.PrivateKey(signingKey[:]), encoded)
	env := envelope{Payload: encoded}
	copy(env.Signature[:], sig)
	return marshalEnvelope(env)
}

// Decode splits raw bytes into their signature and payload without
// verifying anything yet — this is step 1 ("Decode") of the
// CertValidator algorithm in spec §4.2. Signature verification
// happens later, once the candidate's author key at the candidate
// index is known (step 4).
func Decode(raw []byte) (payload []byte, signature [ed25519.SignatureSize]byte, err error) {
	env, err := unmarshalEnvelope(raw)
	if err != nil {
		return nil, signature, err
	}
	return env.Payload, env.Signature, nil
}

// VerifyDetached checks a detached signature produced by DumpSign
// against the given verify key.
func VerifyDetached(payload []byte, signature [ed25519.SignatureSize]byte, verifyKey types.VerifyKey) bool {
	return ed25519.Verify(ed25519.PublicKey(verifyKey[:]), payload, signature[:])
}

// LoadSigned decodes and verifies raw bytes in one step, then
// JSON-decodes the payload into dst. This is the convenience form of
// spec §1's "load_signed(bytes) -> certificate" primitive for callers
// that already know the expected signer (e.g. tests, or Root-signed
// certificates whose key is a constant).
func LoadSigned(raw []byte, verifyKey types.VerifyKey, dst any) error {
	payload, sig, err := Decode(raw)
	if err != nil {
		return err
	}
	if !VerifyDetached(payload, sig, verifyKey) {
		return fmt.Errorf("signature verification failed")
	}
	return json.Unmarshal(payload, dst)
}

// marshalEnvelope/unmarshalEnvelope give the envelope a stable wire
// layout independent of Go's JSON struct-field ordering, since the
// signature is fixed-size binary and the payload is already-encoded
// JSON bytes.
func marshalEnvelope(env envelope) ([]byte, error) {
	out := make([]byte, 0, len(env.Signature)+len(env.Payload))
	out = append(out, env.Signature[:]...)
	out = append(out, env.Payload...)
	return out, nil
}

func unmarshalEnvelope(raw []byte) (envelope, error) {
	if len(raw) < ed25519.SignatureSize {
		return envelope{}, fmt.Errorf("corrupted certificate: truncated signature")
	}
	var env envelope
	copy(env.Signature[:], raw[:ed25519.SignatureSize])
	env.Payload = raw[ed25519.SignatureSize:]
	if !json.Valid(env.Payload) {
		return envelope{}, fmt.Errorf("corrupted certificate: invalid payload encoding")
	}
	return env, nil
}
