package config

import (
	"os"
	"path/filepath"
	"testing"
)

// writeConfigFile writes a temporary config file and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("applies defaults for missing sections", func(t *testing.T) {
		path := writeConfigFile(t, `
mqtt:
  broker:
    host: broker.local
`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.MQTT.Broker.Host != "broker.local" {
			t.Errorf("broker host = %q, want broker.local", cfg.MQTT.Broker.Host)
		}
		if cfg.MQTT.Broker.Port != 1883 {
			t.Errorf("broker port = %d, want default 1883", cfg.MQTT.Broker.Port)
		}
		if cfg.Database.Path == "" {
			t.Error("database path default missing")
		}
		if cfg.Bus.SubjectPrefix != "devicebus" {
			t.Errorf("subject prefix = %q, want default devicebus", cfg.Bus.SubjectPrefix)
		}
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := writeConfigFile(t, `
database:
  path: /var/lib/devreg/registry.db
  wal_mode: false
bus:
  portal_id: gx-48e7da87c2e1
logging:
  level: debug
  format: text
`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Database.Path != "/var/lib/devreg/registry.db" {
			t.Errorf("database path = %q", cfg.Database.Path)
		}
		if cfg.Bus.PortalID != "gx-48e7da87c2e1" {
			t.Errorf("portal id = %q", cfg.Bus.PortalID)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("log level = %q, want debug", cfg.Logging.Level)
		}
	})

	t.Run("environment overrides file values", func(t *testing.T) {
		path := writeConfigFile(t, `
mqtt:
  broker:
    host: from-file
`)
		t.Setenv("DEVREG_MQTT_HOST", "from-env")
		t.Setenv("DEVREG_MQTT_PASSWORD", "s3cret")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.MQTT.Broker.Host != "from-env" {
			t.Errorf("broker host = %q, want from-env", cfg.MQTT.Broker.Host)
		}
		if cfg.MQTT.Auth.Password != "s3cret" {
			t.Errorf("password not taken from environment")
		}
	})

	t.Run("missing file returns error", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("Load() expected error for missing file")
		}
	})

	t.Run("malformed yaml returns error", func(t *testing.T) {
		path := writeConfigFile(t, "mqtt: [not: valid")
		if _, err := Load(path); err == nil {
			t.Error("Load() expected error for malformed YAML")
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"empty database path", func(c *Config) { c.Database.Path = "" }, true},
		{"negative busy timeout", func(c *Config) { c.Database.BusyTimeout = -1 }, true},
		{"empty broker host", func(c *Config) { c.MQTT.Broker.Host = "" }, true},
		{"port out of range", func(c *Config) { c.MQTT.Broker.Port = 70000 }, true},
		{"empty client id", func(c *Config) { c.MQTT.Broker.ClientID = "" }, true},
		{"invalid qos", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"empty bus url", func(c *Config) { c.Bus.URL = "" }, true},
		{"empty portal id", func(c *Config) { c.Bus.PortalID = "" }, true},
		{"influx enabled without org", func(c *Config) {
			c.InfluxDB.Enabled = true
			c.InfluxDB.Org = ""
		}, true},
		{"influx disabled ignores org", func(c *Config) {
			c.InfluxDB.Enabled = false
			c.InfluxDB.Org = ""
		}, false},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
