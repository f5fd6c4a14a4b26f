package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_FillsZeroValues(t *testing.T) {
	c := &Config{}
	c.applyDefaults()

	assert.Equal(t, "8080", c.Server.Port)
	assert.Equal(t, "development", c.Server.Env)
	assert.Equal(t, 15, c.Server.ReadTimeoutSec)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, c.Server.CORSAllowOrigins)
	assert.Equal(t, 10, c.Queue.MaxPrio)
	assert.Equal(t, 24*3600, c.Auth.JWTTTLSec)
	assert.Equal(t, 100, c.RateLimit.GeneralPerMinute)
	assert.Equal(t, 500, c.RateLimit.IngestEventPerMinute)
	assert.Equal(t, 300, c.Reports.TTLSeconds)
	assert.Equal(t, "agnox/runner:latest", c.Defaults.Image)
	assert.NotEmpty(t, c.Defaults.BaseURLsByEnv)
}

func TestApplyDefaults_ProductionGetsEmptyCORSOrigins(t *testing.T) {
	c := &Config{Server: ServerConfig{Env: "production"}}
	c.applyDefaults()
	assert.Empty(t, c.Server.CORSAllowOrigins)
}

func TestApplyDefaults_DoesNotOverrideExplicitValues(t *testing.T) {
	c := &Config{Server: ServerConfig{Port: "9090"}}
	c.applyDefaults()
	assert.Equal(t, "9090", c.Server.Port)
}

func TestApplyEnvOverrides_PrefersEnvVarOverExisting(t *testing.T) {
	os.Setenv("PORT", "4000")
	os.Setenv("JWT_SECRET", "from-env")
	defer os.Unsetenv("PORT")
	defer os.Unsetenv("JWT_SECRET")

	c := &Config{Server: ServerConfig{Port: "8080"}}
	c.applyEnvOverrides()

	assert.Equal(t, "4000", c.Server.Port)
	assert.Equal(t, "from-env", c.Auth.JWTSecret)
}

func TestApplyEnvOverrides_CORSOriginsAreSplitAndTrimmed(t *testing.T) {
	os.Setenv("CORS_ALLOW_ORIGINS", "https://a.example.com, https://b.example.com")
	defer os.Unsetenv("CORS_ALLOW_ORIGINS")

	c := &Config{}
	c.applyEnvOverrides()

	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, c.Server.CORSAllowOrigins)
}

func TestIsProductionAndIsDevelopment(t *testing.T) {
	assert.True(t, (&Config{Server: ServerConfig{Env: "production"}}).IsProduction())
	assert.True(t, (&Config{Server: ServerConfig{Env: "development"}}).IsDevelopment())
	assert.False(t, (&Config{Server: ServerConfig{Env: "production"}}).IsDevelopment())
}

func TestSplitCSV_SkipsEmptyEntries(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitCSV("a, ,b,"))
}
