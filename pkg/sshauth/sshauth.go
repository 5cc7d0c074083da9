// Package sshauth verifies SSH-signature bearer tokens. A bearer proves
// possession of a registered SSH private key without a challenge round-trip:
// the client signs a fresh nonce under the "dosei-ssh" signature namespace
// and sends the payload base64-encoded in the Authorization header.
package sshauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
)

// Namespace is the SSH signature namespace for bearer payloads.
const Namespace = "dosei-ssh"

const (
	sigMagic      = "SSHSIG"
	hashAlgorithm = "sha256"
)

// BearerPayload is the decoded form of a `Bearer ssh:<base64>` credential.
// Signature holds the raw signature bytes over the nonce.
type BearerPayload struct {
	Namespace      string `json:"namespace"`
	Nonce          string `json:"nonce"`
	KeyFingerprint string `json:"key_fingerprint"`
	Signature      []byte `json:"signature"`
}

// ParseBearer decodes a base64 bearer payload.
func ParseBearer(encoded string) (*BearerPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode bearer payload: %w", err)
	}
	var payload BearerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse bearer payload: %w", err)
	}
	return &payload, nil
}

// Encode returns the base64 form of the payload, as sent on the wire.
func (p *BearerPayload) Encode() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Fingerprint derives the SHA256 fingerprint of an OpenSSH-format public key.
func Fingerprint(publicKey string) (string, error) {
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse public key: %w", err)
	}
	return ssh.FingerprintSHA256(pub), nil
}

// Verify reports whether the payload's signature over its nonce is valid
// under the given OpenSSH-format public key. Any malformed input maps to
// false; the caller treats false as unauthenticated.
func (p *BearerPayload) Verify(publicKey string) bool {
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey))
	if err != nil {
		return false
	}
	sig := &ssh.Signature{
		Format: signatureFormat(pub),
		Blob:   p.Signature,
	}
	return pub.Verify(signedData(p.Namespace, p.Nonce), sig) == nil
}

// NewBearer signs a fresh nonce with the given key and assembles a payload
// for its fingerprint. Used by clients and tests.
func NewBearer(signer ssh.Signer) (*BearerPayload, error) {
	nonce := uuid.NewString()
	blob, err := signNonce(signer, Namespace, nonce)
	if err != nil {
		return nil, err
	}
	return &BearerPayload{
		Namespace:      Namespace,
		Nonce:          nonce,
		KeyFingerprint: ssh.FingerprintSHA256(signer.PublicKey()),
		Signature:      blob,
	}, nil
}

// signedData assembles the SSHSIG envelope the signature covers: the magic
// preamble, the namespace, a reserved field, the hash algorithm name, and
// the hash of the message.
func signedData(namespace, nonce string) []byte {
	sum := sha256.Sum256([]byte(nonce))
	envelope := struct {
		Namespace     string
		Reserved      string
		HashAlgorithm string
		Hash          string
	}{
		Namespace:     namespace,
		HashAlgorithm: hashAlgorithm,
		Hash:          string(sum[:]),
	}
	return append([]byte(sigMagic), ssh.Marshal(envelope)...)
}

// signatureFormat maps a public key to the signature algorithm expected in
// its SSHSIG blobs. RSA keys always sign with rsa-sha2-512.
func signatureFormat(pub ssh.PublicKey) string {
	if pub.Type() == ssh.KeyAlgoRSA {
		return ssh.KeyAlgoRSASHA512
	}
	return pub.Type()
}

func signNonce(signer ssh.Signer, namespace, nonce string) ([]byte, error) {
	data := signedData(namespace, nonce)
	if signer.PublicKey().Type() == ssh.KeyAlgoRSA {
		algSigner, ok := signer.(ssh.AlgorithmSigner)
		if !ok {
			return nil, fmt.Errorf("rsa signer does not support algorithm selection")
		}
		sig, err := algSigner.SignWithAlgorithm(rand.Reader, data, ssh.KeyAlgoRSASHA512)
		if err != nil {
			return nil, fmt.Errorf("failed to sign nonce: %w", err)
		}
		return sig.Blob, nil
	}
	sig, err := signer.Sign(rand.Reader, data)
	if err != nil {
		return nil, fmt.Errorf("failed to sign nonce: %w", err)
	}
	return sig.Blob, nil
}
