// Package scheduler implements the polling cycle loop.
//
// Each cycle fetches all configured assets concurrently, commits the
// successes to the cache, appends them to history, broadcasts them, and
// then sleeps for an adaptively backed-off interval. The backoff
// multiplier doubles (capped at 4x) after a cycle where no primary
// asset succeeded and halves (floored at 1x) otherwise; only primary
// assets drive the decision so one flaky secondary source cannot back
// the poller off indefinitely.
package scheduler
