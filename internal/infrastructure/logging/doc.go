// Package logging provides structured logging for the device registry.
//
// It wraps Go's standard log/slog package so every component logs with a
// consistent format, level filtering, and default service/version fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("announcement received", "client_id", clientID)
//	logger.Error("allocation failed", "error", err)
//
// Never log secrets: broker passwords and InfluxDB tokens must not appear
// in log output.
package logging
