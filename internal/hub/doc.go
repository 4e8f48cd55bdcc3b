// Package hub implements the subscriber registry and broadcast fan-out.
//
// Delivery is best-effort and fire-and-forget: a failed send prunes that
// connection without affecting delivery to the others, and nothing is
// buffered for disconnected subscribers. Each connection gets an
// independent heartbeat to detect half-open peers.
package hub
