// Package mode implements the live/static mode controller.
//
// Live mode: the poller runs and the cache answers "latest" reads.
// Static mode: the poller is stopped, the cache is released, and reads
// fall back to the durable history store. Transitions are serialized;
// the controller is the single writer of the runtime mode state.
package mode
