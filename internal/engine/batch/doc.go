// Package batch runs many independent external calls through a bounded worker pool.
//
// A Dispatcher feeds work items to a fixed number of workers, applies every
// completion to a single result mapping from one consumer goroutine, and persists
// a snapshot of that mapping after each completion so an interrupted run leaves a
// valid record on disk. Key features:
//   - Fixed concurrency cap (never more than Concurrency items in flight)
//   - Process-wide minimum interval between external calls (RateState)
//   - Bounded retry with exponential backoff (Retrying)
//   - Item failures recorded as data, never returned as errors
//   - One sequential retry pass over failed items after the pool drains
//
// Completion order is arbitrary. Callers that need submission order sort on
// Item.Seq.
package batch
