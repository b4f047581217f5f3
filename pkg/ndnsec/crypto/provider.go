// Package crypto wraps the cryptographic primitives spec.md §1 calls out
// as an external collaborator: SHA-256 and RSA/ECDSA signature
// verification over a DER public key (Interest/Data matching lives in
// packet.Interest.Matches). This module
// never reimplements a cipher or a signature scheme; it wires the
// teacher's own verification library, github.com/sigstore/sigstore, the
// same way pkg/webhook/validator.go does (signature.LoadVerifier +
// VerifySignature against a parsed public key).
package crypto

import (
	"bytes"
	gocrypto "crypto"
	"crypto/sha256"
	"crypto/x509"
	"fmt"

	"github.com/sigstore/sigstore/pkg/signature"

	"github.com/ndn-io/sec2/pkg/ndnsec/packet"
)

// Provider is the CryptoProvider capability set from spec.md §2.1.
type Provider interface {
	// Sha256 returns the SHA-256 digest of data.
	Sha256(data []byte) [32]byte

	// VerifySignature checks sig over signedData using a DER-encoded
	// SubjectPublicKeyInfo. It returns a nil error iff the signature is
	// valid for the declared SignatureType.
	VerifySignature(sigType packet.SignatureType, pubKeyDER []byte, signedData []byte, sig []byte) error
}

// DefaultProvider is the production Provider, backed by
// github.com/sigstore/sigstore/pkg/signature and the standard library's
// DER/X.509 public-key parser.
type DefaultProvider struct{}

var _ Provider = DefaultProvider{}

func (DefaultProvider) Sha256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

func (DefaultProvider) VerifySignature(sigType packet.SignatureType, pubKeyDER []byte, signedData []byte, sig []byte) error {
	pub, err := x509.ParsePKIXPublicKey(pubKeyDER)
	if err != nil {
		return fmt.Errorf("parsing SubjectPublicKeyInfo: %w", err)
	}

	switch sigType {
	case packet.SignatureTypeSHA256WithRSA, packet.SignatureTypeSHA256WithECDSA:
		// both share the same verifier construction; the key type itself
		// (rsa.PublicKey vs ecdsa.PublicKey) disambiguates the algorithm.
	default:
		return fmt.Errorf("unsupported signature type %d", sigType)
	}

	verifier, err := signature.LoadVerifier(pub, gocrypto.SHA256)
	if err != nil {
		return fmt.Errorf("loading verifier: %w", err)
	}

	return verifier.VerifySignature(bytes.NewReader(sig), bytes.NewReader(signedData))
}
