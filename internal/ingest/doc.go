// Package ingest consumes gateway messages from MQTT and appends them to the
// event store.
//
// Four streams run side by side, one per topic family:
//
//	core_event/+/telementry       gateway position reports
//	node_event/+/telementry       sensor readings relayed by a gateway
//	node_event/+/alert/impact     impact alerts
//	node_event/+/alert/liquid     liquid-exposure alerts
//
// Each stream owns a goroutine and a bounded queue. The MQTT handler only
// enqueues; the goroutine drains the queue in delivery order. A full queue
// sheds the message with a warning instead of stalling the shared MQTT
// delivery goroutine, so a slow stream never delays the others.
//
// Every message is processed in isolation. A malformed payload, an unknown
// device or a storage failure is logged and the message dropped; a panic is
// recovered the same way. The stream keeps running until Stop.
//
// With deduplication on, the idempotency key of a message is a name-based
// UUID over its topic and payload, so a broker redelivery is stored once.
package ingest
