// Package signer provides the authenticator the peer driver stamps onto
// every outgoing wire message and checks on every inbound one.
//
// The scheme here is the placeholder spec.md §4.2 and §9 describe: a
// symmetric keyed hash over the payload, not an existentially unforgeable
// digital signature. It is wired up behind the same (Sign, Verify)
// contract a real asymmetric scheme would implement, so swapping it out
// later doesn't touch any caller.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/gdanezis/dlsconsensus-go/message"
)

// Key is the shared secret used for both signing and verification in the
// placeholder scheme. A real deployment would hold a private key here for
// Sign and the corresponding public key for Verify; because the
// placeholder is symmetric, anyone holding a peer's Key can forge its
// signatures, which is exactly the weakness spec.md §9 calls out.
type Key []byte

// Sign computes the authenticator over m's signable payload and stamps it
// onto m.
func Sign(key Key, m message.Signable) error {
	sig, err := mac(key, m)
	if err != nil {
		return err
	}
	m.SetSignature(sig)
	return nil
}

// Verify reports whether m's current signature matches what Sign would
// produce with key. It does not mutate m.
func Verify(key Key, m message.Signable) bool {
	sig := m.Signature()
	if sig == nil {
		return false
	}
	expected, err := mac(key, m)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, sig)
}

func mac(key Key, m message.Signable) ([]byte, error) {
	payload, err := m.SignPayload()
	if err != nil {
		return nil, err
	}
	h := hmac.New(sha256.New, key)
	h.Write(payload)
	return h.Sum(nil), nil
}
