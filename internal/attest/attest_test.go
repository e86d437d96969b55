package attest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindlyrobotics/htree/internal/merkle"
)

func TestAttestAndVerify(t *testing.T) {
	signer, err := GenerateKey()
	require.NoError(t, err)

	root := merkle.Sum([]byte("root-bytes"))
	sth, err := signer.Attest(7, root)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), sth.Nth)
	assert.Equal(t, root, sth.Root)

	assert.True(t, Verify(signer.PublicKeyBytes(), sth))
}

func TestVerifyRejectsTamperedHead(t *testing.T) {
	signer, err := GenerateKey()
	require.NoError(t, err)

	root := merkle.Sum([]byte("root-bytes"))
	sth, err := signer.Attest(1, root)
	require.NoError(t, err)

	tampered := *sth
	tampered.Nth = 2
	assert.False(t, Verify(signer.PublicKeyBytes(), &tampered))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	signer, err := GenerateKey()
	require.NoError(t, err)
	other, err := GenerateKey()
	require.NoError(t, err)

	root := merkle.Sum([]byte("root-bytes"))
	sth, err := signer.Attest(1, root)
	require.NoError(t, err)

	assert.False(t, Verify(other.PublicKeyBytes(), sth))
}

func TestPEMRoundTrip(t *testing.T) {
	signer, err := GenerateKey()
	require.NoError(t, err)

	pemData := signer.MarshalPEM()
	restored, err := NewSignerFromPEM(pemData)
	require.NoError(t, err)
	assert.Equal(t, signer.Fingerprint(), restored.Fingerprint())
	assert.Equal(t, signer.PublicKeyBytes(), restored.PublicKeyBytes())

	root := merkle.Sum([]byte("root-bytes"))
	sth, err := restored.Attest(3, root)
	require.NoError(t, err)
	assert.True(t, Verify(signer.PublicKeyBytes(), sth))
}

func TestNewSignerFromPEMRejectsGarbage(t *testing.T) {
	_, err := NewSignerFromPEM([]byte("not pem"))
	assert.Error(t, err)
}
