package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tasktrack-api/internal/models"
	"github.com/noah-isme/tasktrack-api/pkg/cryptox"
	appErrors "github.com/noah-isme/tasktrack-api/pkg/errors"
)

func newRefreshService(t *testing.T, indexed bool) (*RefreshTokenService, *memoryRefreshRepo, *fakeClock) {
	t.Helper()
	repo := newMemoryRefreshRepo()
	clock := newFakeClock()
	svc := NewRefreshTokenService(repo, testHasher(), RefreshTokenConfig{TTL: 7 * 24 * time.Hour, IndexedLookup: indexed}, nil)
	svc.now = clock.Now
	return svc, repo, clock
}

func TestRefreshCreateStoresOnlyHash(t *testing.T) {
	svc, repo, clock := newRefreshService(t, true)

	raw, record, err := svc.Create(context.Background(), 1, models.ClientMeta{IP: "10.0.0.1", UserAgent: "ua"})
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	stored, ok := repo.get(record.ID)
	require.True(t, ok)
	assert.NotEqual(t, raw, stored.TokenHash)
	assert.NotContains(t, stored.TokenHash, raw)
	assert.Equal(t, cryptox.FingerprintToken(raw), stored.LookupKey)
	assert.Equal(t, clock.Now().Add(7*24*time.Hour), stored.ExpiresAt)
	assert.False(t, stored.Revoked)
	assert.Equal(t, "10.0.0.1", stored.IPAddress)
}

func TestRefreshCreateIssuesDistinctSecrets(t *testing.T) {
	svc, _, _ := newRefreshService(t, true)

	seen := make(map[string]struct{})
	for i := 0; i < 10; i++ {
		raw, _, err := svc.Create(context.Background(), 1, models.ClientMeta{})
		require.NoError(t, err)
		_, dup := seen[raw]
		require.False(t, dup)
		seen[raw] = struct{}{}
	}
}

func TestRefreshValidateMatchesInBothLookupModes(t *testing.T) {
	for _, indexed := range []bool{true, false} {
		svc, _, _ := newRefreshService(t, indexed)
		ctx := context.Background()

		rawA, recA, err := svc.Create(ctx, 1, models.ClientMeta{})
		require.NoError(t, err)
		_, _, err = svc.Create(ctx, 2, models.ClientMeta{})
		require.NoError(t, err)

		got, err := svc.Validate(ctx, rawA)
		require.NoError(t, err, "indexed=%v", indexed)
		assert.Equal(t, recA.ID, got.ID)
		assert.Equal(t, int64(1), got.UserID)
	}
}

func TestRefreshValidateUnknownSecret(t *testing.T) {
	svc, _, _ := newRefreshService(t, false)
	_, _, err := svc.Create(context.Background(), 1, models.ClientMeta{})
	require.NoError(t, err)

	other, err := cryptox.GenerateToken(cryptox.DefaultTokenSize)
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), other)
	assert.True(t, errors.Is(err, appErrors.ErrTokenNotFound))
}

func TestRefreshValidateMalformedSecret(t *testing.T) {
	svc, _, _ := newRefreshService(t, true)
	for _, raw := range []string{"", "short", "not base64 !!", string(make([]byte, 200))} {
		_, err := svc.Validate(context.Background(), raw)
		assert.True(t, errors.Is(err, appErrors.ErrTokenMalformed), "raw=%q", raw)
	}
}

func TestRefreshRevocationIsFinal(t *testing.T) {
	svc, _, _ := newRefreshService(t, true)
	ctx := context.Background()

	raw, _, err := svc.Create(ctx, 1, models.ClientMeta{})
	require.NoError(t, err)

	_, err = svc.RevokeByToken(ctx, raw)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = svc.Validate(ctx, raw)
		assert.True(t, errors.Is(err, appErrors.ErrTokenRevoked))
	}

	// Revoking twice stays a successful no-op.
	rec, err := svc.RevokeByToken(ctx, raw)
	require.NoError(t, err)
	assert.True(t, rec.Revoked)
}

func TestRefreshRevokeUnknownSecret(t *testing.T) {
	svc, _, _ := newRefreshService(t, true)
	raw, err := cryptox.GenerateToken(cryptox.DefaultTokenSize)
	require.NoError(t, err)

	_, err = svc.RevokeByToken(context.Background(), raw)
	assert.True(t, errors.Is(err, appErrors.ErrTokenNotFound))
}

func TestRefreshRevokeExpiredIsNoop(t *testing.T) {
	svc, repo, clock := newRefreshService(t, true)
	raw, rec, err := svc.Create(context.Background(), 1, models.ClientMeta{})
	require.NoError(t, err)

	clock.Advance(8 * 24 * time.Hour)
	_, err = svc.RevokeByToken(context.Background(), raw)
	require.NoError(t, err)

	stored, ok := repo.get(rec.ID)
	require.True(t, ok)
	assert.False(t, stored.Revoked)
}

func TestRefreshExpiredIsDeletedThenNotFound(t *testing.T) {
	svc, repo, clock := newRefreshService(t, true)
	ctx := context.Background()

	raw, rec, err := svc.Create(ctx, 1, models.ClientMeta{})
	require.NoError(t, err)

	clock.Advance(7 * 24 * time.Hour)
	_, err = svc.Validate(ctx, raw)
	assert.True(t, errors.Is(err, appErrors.ErrTokenExpired))
	assert.Contains(t, repo.deleted, rec.ID)
	assert.Equal(t, 0, repo.count())

	_, err = svc.Validate(ctx, raw)
	assert.True(t, errors.Is(err, appErrors.ErrTokenNotFound))
}

func TestRefreshLogoutAllBreadth(t *testing.T) {
	svc, _, _ := newRefreshService(t, false)
	ctx := context.Background()

	var mine []string
	for i := 0; i < 3; i++ {
		raw, _, err := svc.Create(ctx, 1, models.ClientMeta{})
		require.NoError(t, err)
		mine = append(mine, raw)
	}
	theirs, _, err := svc.Create(ctx, 2, models.ClientMeta{})
	require.NoError(t, err)

	n, err := svc.RevokeByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, raw := range mine {
		_, err := svc.Validate(ctx, raw)
		assert.True(t, errors.Is(err, appErrors.ErrTokenRevoked))
	}
	_, err = svc.Validate(ctx, theirs)
	assert.NoError(t, err)

	n, err = svc.RevokeByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRefreshDeleteByUserID(t *testing.T) {
	svc, repo, _ := newRefreshService(t, true)
	ctx := context.Background()

	raw, _, err := svc.Create(ctx, 1, models.ClientMeta{})
	require.NoError(t, err)
	_, _, err = svc.Create(ctx, 2, models.ClientMeta{})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteByUserID(ctx, 1))
	assert.Equal(t, 1, repo.count())

	_, err = svc.Validate(ctx, raw)
	assert.True(t, errors.Is(err, appErrors.ErrTokenNotFound))
}

func TestRefreshRotateRevokesPrevious(t *testing.T) {
	svc, _, _ := newRefreshService(t, true)
	ctx := context.Background()

	raw, rec, err := svc.Create(ctx, 1, models.ClientMeta{})
	require.NoError(t, err)

	nextRaw, next, err := svc.Rotate(ctx, rec, models.ClientMeta{})
	require.NoError(t, err)
	assert.NotEqual(t, raw, nextRaw)
	assert.Equal(t, int64(1), next.UserID)

	_, err = svc.Validate(ctx, raw)
	assert.True(t, errors.Is(err, appErrors.ErrTokenRevoked))
	_, err = svc.Validate(ctx, nextRaw)
	assert.NoError(t, err)

	_, _, err = svc.Rotate(ctx, rec, models.ClientMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrTokenRevoked))
}

func TestRefreshRepositoryFailureIsInternal(t *testing.T) {
	svc, repo, _ := newRefreshService(t, true)
	repo.listErr = errors.New("connection reset")

	raw, err := cryptox.GenerateToken(cryptox.DefaultTokenSize)
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), raw)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInternal.Code))
}
