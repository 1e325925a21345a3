package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"regexp"

	"github.com/google/uuid"

	"github.com/cuemby/parsec-core/pkg/cryptocore"
	"github.com/cuemby/parsec-core/pkg/types"
)

// Resolved is a device's settings after every raw string has been
// parsed and validated: a compiled prevent-sync pattern, decoded keys,
// and typed ids, ready to hand straight to certstore.Config,
// manifestcache.Config, and pathresolver.Config.
type Resolved struct {
	DataDir    string
	ServerAddr string

	DeviceKey     types.SymmetricKey
	RootVerifyKey types.VerifyKey
	UserID        types.UserID
	DeviceID      types.DeviceID

	PreventSyncPattern *regexp.Regexp

	LogLevel string
	LogJSON  bool
}

// Resolve validates and parses c's raw settings. DeviceSecretFile is
// read as opaque bytes; how that file itself is produced and
// protected (passphrase-wrapped keystore, hardware-backed secret,
// plain file) is out of this core's scope, per cryptocore's own
// DeriveDeviceKey doc comment.
func (c Config) Resolve() (*Resolved, error) {
	secret, err := os.ReadFile(c.DeviceSecretFile)
	if err != nil {
		return nil, fmt.Errorf("reading device_secret_file %q: %w", c.DeviceSecretFile, err)
	}
	deviceKey, err := cryptocore.DeriveDeviceKey(secret)
	if err != nil {
		return nil, fmt.Errorf("deriving device key: %w", err)
	}

	rootVerifyKey, err := decodeVerifyKey(c.RootVerifyKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parsing root_verify_key: %w", err)
	}

	userID, err := parseUserID(c.UserID)
	if err != nil {
		return nil, fmt.Errorf("parsing user_id: %w", err)
	}
	deviceID, err := parseDeviceID(c.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("parsing device_id: %w", err)
	}

	var pattern *regexp.Regexp
	if c.PreventSyncPattern != "" {
		pattern, err = regexp.Compile(c.PreventSyncPattern)
		if err != nil {
			return nil, fmt.Errorf("compiling prevent_sync_pattern: %w", err)
		}
	}

	return &Resolved{
		DataDir:            c.DataDir,
		ServerAddr:         c.ServerAddr,
		DeviceKey:          deviceKey,
		RootVerifyKey:      rootVerifyKey,
		UserID:             userID,
		DeviceID:           deviceID,
		PreventSyncPattern: pattern,
		LogLevel:           c.LogLevel,
		LogJSON:            c.LogJSON,
	}, nil
}

func decodeVerifyKey(hexKey string) (types.VerifyKey, error) {
	var key types.VerifyKey
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return key, fmt.Errorf("invalid hex encoding: %w", err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("expected %d bytes, got %d", len(key), len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

func parseUserID(raw string) (types.UserID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return types.UserID{}, err
	}
	return types.UserID(id), nil
}

func parseDeviceID(raw string) (types.DeviceID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return types.DeviceID{}, err
	}
	return types.DeviceID(id), nil
}
