// Package config loads and validates the device registry configuration.
//
// Configuration is read from a YAML file, merged over hardcoded defaults,
// and finally overridden by DEVREG_* environment variables. The result is
// validated before use so the rest of the application can assume a
// well-formed Config.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, ...})
//
// Secrets (MQTT password, InfluxDB token) should be supplied via environment
// variables rather than committed to the YAML file.
package config
