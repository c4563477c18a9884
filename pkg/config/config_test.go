package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsMatchTokenPolicy(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)

	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RenewalGrace)
	assert.Equal(t, 7*24*time.Hour, cfg.Refresh.Expiration)
	assert.False(t, cfg.Refresh.Rotation)
	assert.True(t, cfg.Refresh.IndexedLookup)
	assert.Equal(t, 10, cfg.Password.BcryptCost)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsDevSecretInProduction(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("ENV", EnvProduction)
	cfg := fromViper(v)

	assert.Error(t, cfg.Validate())

	cfg.JWT.Secret = "a-real-production-secret"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsEmptySecret(t *testing.T) {
	cfg := &Config{JWT: JWTConfig{Secret: "  ", Expiration: time.Hour}, Refresh: RefreshTokenConfig{Expiration: time.Hour}}
	assert.Error(t, cfg.Validate())
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("garbage", time.Minute))
	assert.Equal(t, 90*time.Second, parseDuration("90s", time.Minute))
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"http://a", "http://b"}, splitAndTrim(" http://a , ,http://b "))
}
