package sshauth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func newEd25519Signer(t *testing.T) (ssh.Signer, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return signer, string(ssh.MarshalAuthorizedKey(sshPub))
}

func newRSASigner(t *testing.T) (ssh.Signer, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	return signer, string(ssh.MarshalAuthorizedKey(sshPub))
}

func TestBearerRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		newKey func(t *testing.T) (ssh.Signer, string)
	}{
		{"ed25519", newEd25519Signer},
		{"rsa", newRSASigner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer, publicKey := tt.newKey(t)

			payload, err := NewBearer(signer)
			require.NoError(t, err)
			assert.Equal(t, Namespace, payload.Namespace)
			assert.Equal(t, ssh.FingerprintSHA256(signer.PublicKey()), payload.KeyFingerprint)

			encoded, err := payload.Encode()
			require.NoError(t, err)
			decoded, err := ParseBearer(encoded)
			require.NoError(t, err)

			assert.True(t, decoded.Verify(publicKey))
		})
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	signer, publicKey := newEd25519Signer(t)
	payload, err := NewBearer(signer)
	require.NoError(t, err)

	payload.Signature[0] ^= 0xff
	assert.False(t, payload.Verify(publicKey))
}

func TestVerifyRejectsTamperedNonce(t *testing.T) {
	signer, publicKey := newEd25519Signer(t)
	payload, err := NewBearer(signer)
	require.NoError(t, err)

	payload.Nonce = "another-nonce"
	assert.False(t, payload.Verify(publicKey))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	signer, _ := newEd25519Signer(t)
	_, otherKey := newEd25519Signer(t)
	payload, err := NewBearer(signer)
	require.NoError(t, err)

	assert.False(t, payload.Verify(otherKey))
}

func TestVerifyRejectsMalformedKey(t *testing.T) {
	signer, _ := newEd25519Signer(t)
	payload, err := NewBearer(signer)
	require.NoError(t, err)

	assert.False(t, payload.Verify("not a key"))
}

func TestParseBearerRejectsGarbage(t *testing.T) {
	_, err := ParseBearer("%%%not-base64%%%")
	assert.Error(t, err)

	_, err = ParseBearer("bm90IGpzb24=")
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	signer, publicKey := newEd25519Signer(t)

	fingerprint, err := Fingerprint(publicKey)
	require.NoError(t, err)
	assert.Equal(t, ssh.FingerprintSHA256(signer.PublicKey()), fingerprint)

	_, err = Fingerprint("not a key")
	assert.Error(t, err)
}
