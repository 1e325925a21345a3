package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaultsWhenFileAndOverridesAreEmpty(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMergesFileThenOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "device.yaml", `
data_dir: /var/lib/parsec
server_addr: parsec.example.com:443
log_level: warn
`)

	cfg, err := Load(path, map[string]any{"log_level": "debug", "log_json": true})
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/parsec", cfg.DataDir)
	assert.Equal(t, "parsec.example.com:443", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel, "an override must win over the file's own value")
	assert.True(t, cfg.LogJSON)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"), nil)
	assert.Error(t, err)
}

func TestResolveProducesTypedSettings(t *testing.T) {
	dir := t.TempDir()
	secretPath := writeFile(t, dir, "device.secret", "0123456789abcdef0123456789abcdef")

	userID := uuid.New()
	deviceID := uuid.New()
	verifyKey := make([]byte, 32)
	for i := range verifyKey {
		verifyKey[i] = byte(i)
	}

	cfg := Config{
		DataDir:            "/data",
		ServerAddr:         "localhost:9000",
		DeviceSecretFile:   secretPath,
		RootVerifyKeyHex:   hex.EncodeToString(verifyKey),
		UserID:             userID.String(),
		DeviceID:           deviceID.String(),
		PreventSyncPattern: `^\.hidden`,
		LogLevel:           "info",
	}

	resolved, err := cfg.Resolve()
	require.NoError(t, err)

	assert.Equal(t, "/data", resolved.DataDir)
	assert.NotEqual(t, [32]byte{}, [32]byte(resolved.DeviceKey), "never expect the zero key from a real secret file")
	assert.NotEqual(t, [32]byte{}, [32]byte(resolved.RootVerifyKey))
	require.NotNil(t, resolved.PreventSyncPattern)
	assert.True(t, resolved.PreventSyncPattern.MatchString(".hidden-file"))
	assert.False(t, resolved.PreventSyncPattern.MatchString("visible-file"))
}

func TestResolveRejectsShortDeviceSecret(t *testing.T) {
	dir := t.TempDir()
	secretPath := writeFile(t, dir, "device.secret", "too-short")

	cfg := Config{DeviceSecretFile: secretPath, UserID: uuid.New().String(), DeviceID: uuid.New().String()}
	_, err := cfg.Resolve()
	assert.Error(t, err)
}

func TestResolveRejectsMalformedRootVerifyKey(t *testing.T) {
	dir := t.TempDir()
	secretPath := writeFile(t, dir, "device.secret", "0123456789abcdef0123456789abcdef")

	cfg := Config{
		DeviceSecretFile: secretPath,
		RootVerifyKeyHex: "not-hex",
		UserID:           uuid.New().String(),
		DeviceID:         uuid.New().String(),
	}
	_, err := cfg.Resolve()
	assert.Error(t, err)
}

func TestResolveLeavesPreventSyncPatternNilWhenUnset(t *testing.T) {
	dir := t.TempDir()
	secretPath := writeFile(t, dir, "device.secret", "0123456789abcdef0123456789abcdef")

	cfg := Config{
		DeviceSecretFile: secretPath,
		UserID:           uuid.New().String(),
		DeviceID:         uuid.New().String(),
		RootVerifyKeyHex: hex.EncodeToString(make([]byte, 32)),
	}
	resolved, err := cfg.Resolve()
	require.NoError(t, err)
	assert.Nil(t, resolved.PreventSyncPattern)
}
