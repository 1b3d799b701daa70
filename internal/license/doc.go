// Package license implements device-bound license activation.
//
// # Activation
//
// A license key is a row in the hosted licenses table. The first device to
// activate an unbound key claims it with a single conditional write:
//
//	UPDATE licenses SET device_id = $1 WHERE key = $2 AND device_id IS NULL
//
// The write succeeds for exactly one caller. A caller whose write affects no
// rows lost the race and receives ErrDeviceMismatch, even if its earlier read
// showed the key as unbound. Activation on the device that already holds the
// key succeeds without writing.
//
// Rejections are reported as three distinct sentinels from internal/errors:
//
//	ErrInvalidKey      no row with that key
//	ErrRevoked         status is not active
//	ErrDeviceMismatch  bound to another device, or lost the claim race
//
// # Local cache
//
// A successful activation stores the key in an activation file sealed with
// the device id. At startup SilentRecheck re-runs the same validation with
// the cached key; any failure deletes the file so the user is asked for a key
// again. There is no retry loop.
//
// # Keys
//
// Operator tooling generates keys of the form GLAB-XXXX-XXXX-XXXX from an
// alphabet without look-alike characters. Keys typed by users are trimmed
// and upper-cased before lookup; the lookup itself is exact.
package license
