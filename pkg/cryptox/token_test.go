package cryptox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken(DefaultTokenSize)
	require.NoError(t, err)
	b, err := GenerateToken(DefaultTokenSize)
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}

func TestGenerateTokenRejectsNonPositive(t *testing.T) {
	_, err := GenerateToken(0)
	assert.Error(t, err)
}

func TestFingerprintToken(t *testing.T) {
	fp := FingerprintToken("abc")
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, FingerprintToken("abc"))
	assert.NotEqual(t, fp, FingerprintToken("abd"))
}
