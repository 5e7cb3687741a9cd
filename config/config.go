package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the CLI's configuration file: one session, plus any number of
// named local interfaces and logging outputs.
type Config struct {
	Session    SessionConfig
	Interfaces map[string]InterfaceConfig
	Logging    map[string]LoggingConfig
}

// Load reads and validates a configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read configuration file '%s': %w", path, err)
	}

	var cfg Config

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse configuration file '%s': %w", path, err)
	}

	for name, intf := range cfg.Interfaces {
		intf.Name = name
		cfg.Interfaces[name] = intf
	}

	for name, logging := range cfg.Logging {
		logging.Name = name
		cfg.Logging[name] = logging
	}

	if err := cfg.Session.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
