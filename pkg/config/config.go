package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config is a device's raw settings, as decoded from YAML plus any
// overrides, before key material, ids, and the prevent-sync pattern
// are parsed and validated by Resolve.
type Config struct {
	DataDir            string `mapstructure:"data_dir" yaml:"data_dir"`
	ServerAddr         string `mapstructure:"server_addr" yaml:"server_addr"`
	DeviceSecretFile   string `mapstructure:"device_secret_file" yaml:"device_secret_file"`
	RootVerifyKeyHex   string `mapstructure:"root_verify_key" yaml:"root_verify_key"`
	UserID             string `mapstructure:"user_id" yaml:"user_id"`
	DeviceID           string `mapstructure:"device_id" yaml:"device_id"`
	PreventSyncPattern string `mapstructure:"prevent_sync_pattern" yaml:"prevent_sync_pattern"`
	LogLevel           string `mapstructure:"log_level" yaml:"log_level"`
	LogJSON            bool   `mapstructure:"log_json" yaml:"log_json"`
}

// Default returns the settings a freshly installed device starts from
// before any config file or override is applied.
func Default() Config {
	return Config{
		DataDir:    "./parsec-data",
		ServerAddr: "localhost:9000",
		LogLevel:   "info",
	}
}

// Load reads path (a YAML document matching Config's field names) into
// Default()'s base, then applies overrides on top — a flat
// key-to-value map, the shape a CLI layer gathers from flags or
// PARSEC_*-prefixed environment variables — before a single
// mapstructure.Decode pass produces the final Config. An empty path
// skips the file read entirely, so a device can run on overrides
// alone.
func Load(path string, overrides map[string]any) (Config, error) {
	cfg := Default()

	raw := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	}
	for k, v := range overrides {
		raw[k] = v
	}
	if len(raw) == 0 {
		return cfg, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return Config{}, fmt.Errorf("building config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}
