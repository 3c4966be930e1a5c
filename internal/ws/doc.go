// Package ws provides WebSocket connection handling and message routing
// for agent job streaming.
//
// The package implements:
//   - Registry: Tracks which connections are subscribed to which channel
//     (job, thread, or ephemeral session) and fans messages out to them
//   - Manager: Bundles the three channel registries and runs the TTL sweeper
//   - Conn: Serializes writes on a gorilla connection so the registry can
//     fan out from multiple goroutines
//
// Key features:
//   - Self-healing fan-out: a failed send drops only the failed connection
//   - Empty channels are deleted immediately; no empty entries persist
//   - Idle connections beyond the TTL are closed by a periodic sweep
//   - Jobs keep running after the last client disconnects (fire-and-forget)
package ws
