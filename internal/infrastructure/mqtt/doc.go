// Package mqtt provides the broker connection of the valve.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Subscriptions to the device's command topics, restored on reconnect
//   - Publishing of state, status and error documents
//   - A retained Last Will so the cloud sees the valve go offline
//
// # Topics
//
// Every topic sits under {base_topic}/{device_id}:
//
//	cmd_data       inbound  set_valve_basic
//	control_data   inbound  set_valve_control
//	state_data     outbound valve_basic_data, every publish interval
//	status         outbound valve_status (retained, also the last will)
//	error          outbound valve_error
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Device.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.SubscribeInbound(1, handle)
//
// # Security Considerations
//
//   - TLS should be enabled when the broker is not on the local network
//   - Message payloads are not encrypted beyond TLS transport
package mqtt
