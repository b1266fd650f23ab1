package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Minute)

	token, expiresAt, err := signer.Generate("file-1", "avatars/file-1.png")
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))

	fileID, relPath, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "file-1", fileID)
	require.Equal(t, "avatars/file-1.png", relPath)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLRejectsTamperedToken(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Minute)

	token, _, err := signer.Generate("file-1", "avatars/file-1.png")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token+"x", false)
	require.Error(t, err)
}

func TestSignedURLExpired(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Minute)
	signer.ttl = -time.Minute

	token, _, err := signer.Generate("file-1", "avatars/file-1.png")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token, false)
	require.Error(t, err)

	_, relPath, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "avatars/file-1.png", relPath)
}
