// Package mqtt mirrors gateway traffic onto an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing device events to omnilock/event/{imei}/{kind}
//   - Command ingestion from omnilock/command/{imei}/{unlock,locate}
//   - Last Will and Testament (LWT) for offline detection
//
// The mirror is optional. When mqtt.enabled is false the gateway runs
// with webhook fan-out only; nothing else depends on this package.
//
// # Topic Structure
//
//	omnilock/event/{imei}/signin     device announced itself (retained)
//	omnilock/event/{imei}/heartbeat  liveness + battery voltage
//	omnilock/event/{imei}/location   position report
//	omnilock/command/{imei}/unlock   ask the lock to open
//	omnilock/command/{imei}/locate   ask the lock for a position report
//	omnilock/system/status           gateway online/offline (retained, LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	mirror := mqtt.NewMirror(client, registry, byte(cfg.MQTT.QoS))
//	if err := mirror.Start(); err != nil {
//	    log.Fatal(err)
//	}
package mqtt
