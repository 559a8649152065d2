// Package routecycle implements the shipment lifecycle of a node.
//
// A route cycle moves through a small state machine:
//
//	placed ──start──▶ started ──complete──▶ completed
//	   │                 │
//	   └─────cancel──────┴──────cancel────▶ canceled
//
// Completed and canceled are terminal. A node holds at most one
// non-terminal cycle at a time.
//
// Every transition is a single conditional UPDATE whose WHERE clause carries
// the guard, so two concurrent callers can never both succeed. When the
// UPDATE matches no row the cycle is re-read to tell ErrCycleNotFound apart
// from ErrInvalidState. Creation checks the node's latest cycle inside a
// transaction and is backed by a partial unique index on active cycles.
//
// The active window of a started cycle, [dispatch_time, completion_time],
// scopes telemetry for the correlation engine.
package routecycle
