// Package mqtt is the broker link of Coldtag Core.
//
// Gateways ("cores") publish their own telemetry and relay readings from
// nearby sensor tags ("nodes"):
//
//	Sensor tags → Gateways → MQTT Broker → Coldtag Core
//
// The client connects with a clean session, reconnects on its own and keeps
// a retained online/offline status on coldtag/system/status, backed by a
// Last Will for crashes. It does not remember subscriptions: the ingestion
// pipeline owns them and subscribes again from the OnConnect callback.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	filter := mqtt.Topics{}.AllNodeTelemetry()
//	err = client.Subscribe(filter, 1, func(topic string, payload []byte) error {
//	    addr, _ := mqtt.DeviceAddress(filter, topic)
//	    return queue.Offer(addr, payload)
//	})
package mqtt
