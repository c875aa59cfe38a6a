// Package protocol defines the JSON documents exchanged with the cloud
// broker and local websocket clients.
//
// Inbound commands are decoded leniently: a section whose fields have the
// wrong JSON type is ignored rather than failing the whole message, and an
// ignored section contributes its zero value. Outbound documents are built
// from ObservedState snapshots.
//
// Event names:
//
//	set_valve_basic      manual request (cmd_data topic, websocket)
//	set_valve_control    controller, schedule and sensor settings (control_data topic)
//	set_valve_wifi       wireless credentials (websocket, rejected)
//	request_device_info  websocket passkey handshake
//	device_basic_info    websocket state query
//	valve_basic_data     periodic state publication (state_data topic)
//	valve_data           websocket state reply
//	valve_status         online/offline (status topic)
//	valve_error          last actuation error (error topic)
//	device_info          handshake reply
package protocol
