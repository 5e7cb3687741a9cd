package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterfaceConfig_UnmarshalJSON(t *testing.T) {
	t.Run("parses an http interface configuration", func(t *testing.T) {
		data := []byte(`{"Type": "http", "Config": {"Port": 3000, "JWTSecret": "secret"}}`)

		var cfg InterfaceConfig
		err := json.Unmarshal(data, &cfg)

		assert.NoError(t, err)
		assert.Equal(t, "http", cfg.Type)
		assert.Equal(t, &HTTPInterfaceConfig{Port: 3000, JWTSecret: "secret"}, cfg.Config)
	})

	t.Run("parses an mqtt interface configuration", func(t *testing.T) {
		data := []byte(`{"Type": "mqtt", "Config": {"Server": "tcp://localhost:1883", "TopicPrefix": "nest", "Retained": true, "Credentials": {"Username": "user", "Password": "pass"}}}`)

		var cfg InterfaceConfig
		err := json.Unmarshal(data, &cfg)

		assert.NoError(t, err)
		assert.Equal(t, "mqtt", cfg.Type)
		assert.Equal(t, &MQTTInterfaceConfig{
			Server:      "tcp://localhost:1883",
			TopicPrefix: "nest",
			Retained:    true,
			Credentials: &MQTTCredentials{Username: "user", Password: "pass"},
		}, cfg.Config)
	})

	t.Run("errors on an unknown interface type", func(t *testing.T) {
		var cfg InterfaceConfig
		err := json.Unmarshal([]byte(`{"Type": "carrier-pigeon", "Config": {}}`), &cfg)

		assert.Error(t, err)
	})

	t.Run("errors when the Config stanza is missing", func(t *testing.T) {
		var cfg InterfaceConfig
		err := json.Unmarshal([]byte(`{"Type": "http"}`), &cfg)

		assert.Error(t, err)
	})
}

func TestLoggingConfig_UnmarshalJSON(t *testing.T) {
	t.Run("parses a stdout logging configuration", func(t *testing.T) {
		var cfg LoggingConfig
		err := json.Unmarshal([]byte(`{"Type": "stdout", "Config": {"Level": "debug"}}`), &cfg)

		assert.NoError(t, err)
		assert.Equal(t, &StdoutLogging{BaseLogging{Level: "debug"}}, cfg.Config)
	})

	t.Run("parses a file logging configuration", func(t *testing.T) {
		var cfg LoggingConfig
		err := json.Unmarshal([]byte(`{"Type": "file", "Config": {"Level": "info", "Filename": "/var/log/nestsdm.log", "Size": 10, "Count": 5, "Compress": true}}`), &cfg)

		assert.NoError(t, err)
		assert.Equal(t, &FileLogging{
			BaseLogging: BaseLogging{Level: "info"},
			Filename:    "/var/log/nestsdm.log",
			Size:        10,
			Count:       5,
			Compress:    true,
		}, cfg.Config)
	})

	t.Run("errors on an unknown logging type", func(t *testing.T) {
		var cfg LoggingConfig
		err := json.Unmarshal([]byte(`{"Type": "syslog", "Config": {}}`), &cfg)

		assert.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	t.Run("loads a complete configuration file and names the sections", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		assert.NoError(t, os.WriteFile(path, []byte(`{
			"Session": {
				"ProjectID": "project-1",
				"ClientID": "client-id",
				"ClientSecret": "client-secret",
				"Subscription": "projects/gcp-1/subscriptions/sub-1",
				"TokenFile": "/tmp/token.json"
			},
			"Interfaces": {
				"local": {"Type": "http", "Config": {"Port": 3000}}
			},
			"Logging": {
				"console": {"Type": "stdout", "Config": {"Level": "info"}}
			}
		}`), 0600))

		cfg, err := Load(path)

		assert.NoError(t, err)
		assert.Equal(t, "project-1", cfg.Session.ProjectID)
		assert.Equal(t, "local", cfg.Interfaces["local"].Name)
		assert.Equal(t, "console", cfg.Logging["console"].Name)
	})

	t.Run("errors when the session stanza is incomplete", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		assert.NoError(t, os.WriteFile(path, []byte(`{"Session": {"ProjectID": "project-1"}}`), 0600))

		_, err := Load(path)

		assert.Error(t, err)
	})

	t.Run("errors when the file does not exist", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.json"))

		assert.Error(t, err)
	})
}

func TestSessionConfig_Validate(t *testing.T) {
	t.Run("accepts a complete session", func(t *testing.T) {
		cfg := SessionConfig{
			ProjectID:    "project-1",
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			TokenFile:    "/tmp/token.json",
		}

		assert.NoError(t, cfg.Validate())
	})

	t.Run("rejects a session missing credentials", func(t *testing.T) {
		cfg := SessionConfig{ProjectID: "project-1"}

		assert.Error(t, cfg.Validate())
	})
}
