// Package logging provides structured logging for Coldtag Core.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same shape: JSON in production, text in development, and the
// service and version attributes on every record.
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
//	logger.Component("ingest").Warn("message dropped", "topic", topic, "error", err)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
