package config

import (
	"os"
	"testing"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, EnvDevelopment, c.Environment)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, 3*time.Hour, c.AccessTokenValidityDuration)
	assert.Equal(t, 7*24*time.Hour, c.RefreshTokenValidityDuration)
	assert.Equal(t, 12, c.PasswordHashCost)
	assert.Equal(t, 10, c.TokenHashCost)
	assert.Equal(t, time.Hour, c.SweepInterval)
	assert.Equal(t, 5, c.LoginRateLimit)
	assert.Equal(t, 10*time.Minute, c.LoginRateWindow)
	assert.Empty(t, c.AccessTokenSecret)
	assert.Empty(t, c.RefreshTokenSecret)
	assert.Empty(t, c.RedisAddr)
	assert.Equal(t, int64(10<<20), c.MaxBodyBytes)
	assert.Equal(t, 30*time.Second, c.RequestTimeout)
}

func TestLoadConfig_Layers(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTempJSON(t, "", "", map[string]any{
		"http_addr":           ":7000",
		"access_token_secret": "from-json",
	})

	t.Setenv("JWT_REFRESH_TOKEN_SECRET", "from-env")
	t.Setenv("HTTP_ADDR", ":7001")
	os.Args = []string{"testbin", "-c", path, "-a", ":7002"}

	c, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":7002", c.HTTPAddr, "flags win over env and json")
	assert.Equal(t, "from-json", c.AccessTokenSecret)
	assert.Equal(t, "from-env", c.RefreshTokenSecret)
	assert.Equal(t, 3*time.Hour, c.AccessTokenValidityDuration, "defaults survive")
	require.NoError(t, c.Validate())
}

func TestLoadConfig_BadJSON(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	os.Args = []string{"testbin", "-c", "/definitely/not/here.json"}
	_, err := LoadConfig()
	require.Error(t, err)
}

func validConfig() *Config {
	c := &Config{}
	c.LoadDefaults()
	c.AccessTokenSecret = "access"
	c.RefreshTokenSecret = "refresh"
	return c
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "missing access secret", mutate: func(c *Config) { c.AccessTokenSecret = "" }, wantErr: "access token secret is not set"},
		{name: "missing refresh secret", mutate: func(c *Config) { c.RefreshTokenSecret = "" }, wantErr: "refresh token secret is not set"},
		{name: "same secrets", mutate: func(c *Config) { c.RefreshTokenSecret = c.AccessTokenSecret }, wantErr: "must differ"},
		{name: "zero ttl", mutate: func(c *Config) { c.AccessTokenValidityDuration = 0 }, wantErr: "must be positive"},
		{name: "bad cost", mutate: func(c *Config) { c.TokenHashCost = 2 }, wantErr: "hash costs"},
		{name: "bad env", mutate: func(c *Config) { c.Environment = "staging" }, wantErr: "unknown environment"},
		{name: "zero sweep", mutate: func(c *Config) { c.SweepInterval = 0 }, wantErr: "sweep interval"},
		{name: "zero body limit", mutate: func(c *Config) { c.MaxBodyBytes = 0 }, wantErr: "max body size"},
		{name: "zero request timeout", mutate: func(c *Config) { c.RequestTimeout = 0 }, wantErr: "request timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateHashCosts(t *testing.T) {
	c := &Config{PasswordHashCost: 12, TokenHashCost: 10}
	require.NoError(t, c.ValidateHashCosts(), "secrets are not required")

	c.PasswordHashCost = 64
	assert.ErrorIs(t, c.ValidateHashCosts(), cryptox.ErrInvalidCost)
}

func TestParseEnv_LimitsAndTimeout(t *testing.T) {
	t.Setenv("MAX_BODY_BYTES", "1024")
	t.Setenv("REQUEST_TIMEOUT", "5s")

	c := validConfig()
	require.NoError(t, parseEnv(c))
	assert.Equal(t, int64(1024), c.MaxBodyBytes)
	assert.Equal(t, 5*time.Second, c.RequestTimeout)
}

func TestIsDevelopment(t *testing.T) {
	c := validConfig()
	assert.True(t, c.IsDevelopment())
	c.Environment = EnvProduction
	assert.False(t, c.IsDevelopment())
}

func TestParseEnv(t *testing.T) {
	t.Setenv("JWT_ACCESS_TOKEN_TTL", "15m")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1,10.0.0.2")
	t.Setenv("TOKEN_HASH_COST", "8")

	c := validConfig()
	require.NoError(t, parseEnv(c))

	assert.Equal(t, 15*time.Minute, c.AccessTokenValidityDuration)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, c.TrustedProxies)
	assert.Equal(t, 8, c.TokenHashCost)
	assert.Equal(t, 7*24*time.Hour, c.RefreshTokenValidityDuration)
}

func TestParseEnv_Invalid(t *testing.T) {
	t.Setenv("TOKEN_HASH_COST", "many")
	c := validConfig()
	require.Error(t, parseEnv(c))
}
