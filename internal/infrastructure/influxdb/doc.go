// Package influxdb mirrors ingested telemetry into InfluxDB v2.
//
// SQLite remains the system of record. The mirror gives dashboards a
// time-series view of gateway positions, node readings and alerts, and a
// failed mirror write never affects ingestion.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without a mirror
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { log.Warn("influx write failed", "error", err) })
//	client.WriteEvent(ev, "AA:BB:CC:DD:EE:FF", "C0:FF:EE:00:00:01")
//
// Points are batched according to influxdb.batch_size and
// influxdb.flush_interval.
package influxdb
