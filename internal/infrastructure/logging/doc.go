// Package logging provides the structured logger of the valve core.
//
// It wraps log/slog. Every record carries service=valvecore and the build
// version, and each long-running part of the controller logs through a
// child tagged with its component name:
//
//	actuator   motor drive and limit sensor outcomes
//	control    synchronization loop dispatches
//	command    MQTT, HTTP and websocket command handling
//	schedule   weekly schedule jobs
//	telemetry  state publishing
//	mqtt, api  transport
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// The idle self-test and each repeated retry log at debug, so a valve with a
// faulty sensor does not flood the log at info.
//
// # Security
//
// The passkey, its hash, the JWT secret and issued tokens are never logged.
package logging
