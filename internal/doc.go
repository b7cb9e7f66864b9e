// Package internal contains the implementation of the energycharts daemon.
//
// # Architecture
//
// The daemon is structured into several key packages:
//   - energycharts: fetch client and response normalizer for the
//     Energy-Charts power data API
//   - aggregate: per-source records, production totals and category sums
//   - coordinator: refresh cycle and atomic snapshot publication
//   - scheduler: periodic refresh ticks at the configured interval
//   - server: read-only JSON API over the latest snapshot
//   - config: YAML configuration and validation
//
// Data flows one way: network -> normalizer -> aggregation -> snapshot ->
// HTTP consumers. The coordinator publishes each snapshot with a single
// atomic replace, so readers always observe a fully consistent poll result;
// when a refresh fails, the previous snapshot keeps being served.
//
// Failure handling follows a small taxonomy (connection, timeout,
// not-found, data). The fetch client retries everything but not-found with
// exponential backoff and surfaces the last failure; the coordinator folds
// any surfaced failure into a single update-failure signal and leaves retry
// cadence to the scheduler.
package internal
