package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the OmniLock MQTT namespace.
const (
	// TopicPrefixEvent is the base for device event topics.
	TopicPrefixEvent = "omnilock/event"

	// TopicPrefixCommand is the base for inbound command topics.
	TopicPrefixCommand = "omnilock/command"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "omnilock/system"
)

// Command actions accepted on command topics.
const (
	ActionUnlock = "unlock"
	ActionLocate = "locate"
)

// Topics provides builders for OmniLock MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// DeviceEvent returns the topic for one device event kind.
//
// Example: omnilock/event/863725031194523/heartbeat
func (Topics) DeviceEvent(imei, kind string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixEvent, imei, kind)
}

// CommandUnlock returns the topic that triggers an unlock for a device.
//
// Example: omnilock/command/863725031194523/unlock
func (Topics) CommandUnlock(imei string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixCommand, imei, ActionUnlock)
}

// CommandLocate returns the topic that requests a position report.
//
// Example: omnilock/command/863725031194523/locate
func (Topics) CommandLocate(imei string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixCommand, imei, ActionLocate)
}

// SystemStatus returns the gateway status topic carrying the LWT.
//
// Example: omnilock/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllCommands returns a pattern matching every device command.
//
// Pattern: omnilock/command/+/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/+/+", TopicPrefixCommand)
}

// AllDeviceEvents returns a pattern matching every device event.
//
// Pattern: omnilock/event/+/+
func (Topics) AllDeviceEvents() string {
	return fmt.Sprintf("%s/+/+", TopicPrefixEvent)
}

// ParseCommandTopic splits a concrete command topic into its IMEI and
// action. Topics that do not match the command scheme, or that name an
// unknown action, fail with ErrInvalidTopic.
func ParseCommandTopic(topic string) (imei, action string, err error) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixCommand+"/")
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not a command topic", ErrInvalidTopic, topic)
	}

	imei, action, ok = strings.Cut(rest, "/")
	if !ok || imei == "" || strings.Contains(action, "/") {
		return "", "", fmt.Errorf("%w: %q is not a command topic", ErrInvalidTopic, topic)
	}

	if action != ActionUnlock && action != ActionLocate {
		return "", "", fmt.Errorf("%w: unknown command action %q", ErrInvalidTopic, action)
	}
	return imei, action, nil
}
