// Package auth guards the local control surfaces of the valve.
//
// There are no user accounts. A single passkey, stored only as an Argon2id
// PHC hash in the configuration, unlocks both local channels:
//   - the websocket handshake (request_device_info)
//   - POST /api/v1/auth/token, which exchanges the passkey for a short-lived
//     HS256 JWT scoped to this device
//
// Tokens are validated by signature and audience only; nothing is stored.
package auth
