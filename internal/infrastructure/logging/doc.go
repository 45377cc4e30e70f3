// Package logging provides structured logging for the sample centring core.
//
// It wraps log/slog so every entry carries the service name and build
// version, and components derive child loggers with With.
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
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("camera subscribed", "subscribers", 2)
//	logger.Warn("hardware call failed", "kind", "hardware_unavailable", "error", err)
//
// Never log MQTT credentials or InfluxDB tokens.
package logging
