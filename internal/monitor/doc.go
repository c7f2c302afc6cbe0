// Package monitor reports dispatch lifecycle events to a socket.io endpoint.
// A Monitor is attached to a dispatch.Registry and emits one event before,
// during and after every dispatch.
package monitor
