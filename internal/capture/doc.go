// Package capture acquires raw audio from an input device and emits it as
// fixed-interval PCM chunks. Capture failures surface through the device's
// Err method after its chunk channel closes.
package capture
