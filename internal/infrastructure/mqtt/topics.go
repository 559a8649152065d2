package mqtt

import (
	"fmt"
	"strings"
)

// Topic roots published by coldtag gateways.
//
// Device topics have the shape {root}/{address}/{category...}. The telemetry
// category is spelled "telementry" by deployed gateway firmware and must be
// matched exactly.
const (
	// TopicRootCore is the root for gateway-originated events.
	TopicRootCore = "core_event"

	// TopicRootNode is the root for sensor-tag events relayed by a gateway.
	TopicRootNode = "node_event"

	// TopicTelemetry is the telemetry category segment.
	TopicTelemetry = "telementry"

	// TopicAlert is the alert category segment; the alert kind follows it.
	TopicAlert = "alert"

	// TopicPrefixSystem is the base for this service's own status topics.
	TopicPrefixSystem = "coldtag/system"
)

// Topics provides builders for coldtag MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.NodeTelemetry("AA:BB:CC:DD:EE:FF")
//	// Returns: "node_event/AA:BB:CC:DD:EE:FF/telementry"
type Topics struct{}

// CoreTelemetry returns the telemetry topic of one gateway.
//
// Example: core_event/C0:FF:EE:00:00:01/telementry
func (Topics) CoreTelemetry(address string) string {
	return fmt.Sprintf("%s/%s/%s", TopicRootCore, address, TopicTelemetry)
}

// NodeTelemetry returns the telemetry topic of one sensor tag.
//
// Example: node_event/AA:BB:CC:DD:EE:FF/telementry
func (Topics) NodeTelemetry(address string) string {
	return fmt.Sprintf("%s/%s/%s", TopicRootNode, address, TopicTelemetry)
}

// NodeAlert returns an alert topic of one sensor tag.
//
// Example: node_event/AA:BB:CC:DD:EE:FF/alert/impact
func (Topics) NodeAlert(address, kind string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicRootNode, address, TopicAlert, kind)
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: coldtag/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllCoreTelemetry subscribes to telemetry from every gateway.
func (Topics) AllCoreTelemetry() string {
	return Topics{}.CoreTelemetry("+")
}

// AllNodeTelemetry subscribes to telemetry from every sensor tag.
func (Topics) AllNodeTelemetry() string {
	return Topics{}.NodeTelemetry("+")
}

// AllNodeAlerts subscribes to one alert kind from every sensor tag.
func (Topics) AllNodeAlerts(kind string) string {
	return Topics{}.NodeAlert("+", kind)
}

// DeviceAddress matches topic against a subscription filter holding one
// single-level wildcard and returns the segment the wildcard stands for.
// ok is false when the topic does not match or that segment is empty.
//
//	DeviceAddress("node_event/+/alert/impact", "node_event/AA:BB:CC:DD:EE:FF/alert/impact")
//	// Returns: "AA:BB:CC:DD:EE:FF", true
func DeviceAddress(filter, topic string) (address string, ok bool) {
	want := strings.Split(filter, "/")
	got := strings.Split(topic, "/")
	if len(want) != len(got) {
		return "", false
	}
	for i, segment := range want {
		if segment != "+" {
			if got[i] != segment {
				return "", false
			}
			continue
		}
		if got[i] == "" || address != "" {
			return "", false
		}
		address = got[i]
	}
	return address, address != ""
}
