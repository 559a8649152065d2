// Package api implements the HTTP REST API for Coldtag Core.
//
// This package provides:
//   - Device endpoints for cores and nodes, with connection status
//   - Event listings, with node readings located through their core
//   - Route cycle lifecycle endpoints and cycle-scoped telemetry and alerts
//   - Health and metrics endpoints covering storage, MQTT and ingestion
//
// # Errors
//
// Every error response has the shape:
//
//	{"error": {"code": "not_found", "message": "route cycle not found"}}
//
// Domain sentinels map to status codes in one place, statusFor in errors.go.
//
// # Timestamps
//
// Query parameters and response bodies use UTC times in the form
// 2006-01-02T15:04:05Z.
package api
