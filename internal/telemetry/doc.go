// Package telemetry holds the immutable device events and their store.
//
// Three event variants share one Event interface:
//
//   - CoreEvent: a gateway position report
//   - NodeEvent: a sensor reading relayed by a gateway
//   - AlertEvent: an impact or liquid trigger relayed by a gateway
//
// Node readings and alerts also implement Correlatable, the shape the
// correlation engine needs to attach a gateway position to them.
//
// Events are append-only. Store has no update or delete. Each append carries
// an idempotency key and a repeated key is ignored, so redelivered
// messages never produce duplicate rows.
//
// Event times are stored as UTC text in TimeLayout, which sorts lexically in
// time order. All list queries return newest first.
package telemetry
