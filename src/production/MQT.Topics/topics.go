// Package topics centralises every MQTT topic string the gateway uses
package topics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	PlantPrefix   = "planta"
	ControlPrefix = "control/provisioning"

	// DataChannel is the third segment of a device telemetry topic
	DataChannel = "lecturas"
)

var ErrMalformedTopic = errors.New("malformed topic")

// WildcardTelemetry is subscribed on every broker: planta/#
func WildcardTelemetry() string {
	return PlantPrefix + "/#"
}

// TelemetryPrefix is the routing prefix of telemetry topics: planta/
func TelemetryPrefix() string {
	return PlantPrefix + "/"
}

func DeviceData(plantID string) string {
	return fmt.Sprintf("%s/%s/%s", PlantPrefix, plantID, DataChannel)
}

func DeviceCommand(plantID string) string {
	return fmt.Sprintf("%s/%s/command/", PlantPrefix, plantID)
}

func Discovery() string {
	return ControlPrefix + "/discovery"
}

func WildcardControl() string {
	return ControlPrefix + "/#"
}

// ProvisioningConfig is scoped to one MAC so an unclaimed device never sees
// another device's credentials
func ProvisioningConfig(mac string) string {
	return fmt.Sprintf("%s/device/%s", ControlPrefix, mac)
}

// ProvisioningDevicePrefix is the topic prefix unclaimed devices subscribe under
func ProvisioningDevicePrefix() string {
	return ControlPrefix + "/device/"
}

// IsLiteralSegment reports whether s can stand as exactly one topic level:
// non-empty, with no level separator and no wildcard
func IsLiteralSegment(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/+#")
}

// ProvisioningConfigMAC returns the MAC of a literal provisioning config
// topic, false for wildcards or nested levels
func ProvisioningConfigMAC(topic string) (string, bool) {
	mac, ok := strings.CutPrefix(topic, ProvisioningDevicePrefix())
	if !ok || !IsLiteralSegment(mac) {
		return "", false
	}
	return mac, true
}

// SplitTelemetry extracts the plant id and channel from planta/<id>/<channel>
func SplitTelemetry(topic string) (plantID, channel string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != PlantPrefix {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
	}
	if parts[1] == "" {
		return "", "", fmt.Errorf("%w: empty plant id in %q", ErrMalformedTopic, topic)
	}
	return parts[1], parts[2], nil
}

func IsTelemetry(topic string) bool {
	return strings.HasPrefix(topic, TelemetryPrefix())
}

func IsDiscovery(topic string) bool {
	return strings.HasPrefix(topic, Discovery())
}

func BrokerURL(host string, port int) string {
	return fmt.Sprintf("tcp://%s:%d", host, port)
}

// BrokerHost strips the scheme and port from a broker URL
func BrokerHost(url string) string {
	host := url
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	host = strings.TrimSuffix(host, "/")
	if i := strings.LastIndex(host, ":"); i >= 0 {
		if _, err := strconv.Atoi(host[i+1:]); err == nil {
			host = host[:i]
		}
	}
	return host
}
