// Package telemetry tracks per-device gauges for the metrics endpoint.
package telemetry

import (
	"sync"
	"time"
)

// DeviceGauges holds the current gauge values for one device.
//
// The lock gauges track the lock's own radio link; the tracker gauges
// track the GPS subsystem. Heartbeats report a single battery feeding
// both voltage gauges.
type DeviceGauges struct {
	TrackerBatteryVolts float64 `json:"tracker_battery_volts"`
	LockBatteryVolts    float64 `json:"lock_battery_volts"`
	TrackerLastUpdate   int64   `json:"tracker_last_data_update"`
	LockLastUpdate      int64   `json:"lock_last_data_update"`
}

// Collector accumulates device gauges. All methods are thread-safe.
type Collector struct {
	mu      sync.RWMutex
	devices map[string]*DeviceGauges

	// now is replaceable in tests.
	now func() time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		devices: make(map[string]*DeviceGauges),
		now:     time.Now,
	}
}

func (c *Collector) gauges(imei string) *DeviceGauges {
	g, ok := c.devices[imei]
	if !ok {
		g = &DeviceGauges{}
		c.devices[imei] = g
	}
	return g
}

// RecordActivity notes that any line arrived from the device.
func (c *Collector) RecordActivity(imei string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges(imei).LockLastUpdate = c.now().Unix()
}

// RecordVoltage sets both battery gauges from a heartbeat report.
func (c *Collector) RecordVoltage(imei string, volts float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.gauges(imei)
	g.TrackerBatteryVolts = volts
	g.LockBatteryVolts = volts
}

// RecordPosition notes that a position report arrived.
func (c *Collector) RecordPosition(imei string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges(imei).TrackerLastUpdate = c.now().Unix()
}

// Snapshot returns a copy of all device gauges keyed by IMEI.
func (c *Collector) Snapshot() map[string]DeviceGauges {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]DeviceGauges, len(c.devices))
	for imei, g := range c.devices {
		out[imei] = *g
	}
	return out
}
