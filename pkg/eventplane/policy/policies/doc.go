// Package policies provides ready-made policies for policy chains.
//
//   - Logging: structured before/after log lines
//   - Tracing: event identity on the current span
//   - Retry: re-invokes the chain on transient errors
//   - RateLimit: per-key token buckets in process
//   - DistributedRateLimit: token buckets in a shared LimiterStore (Redis)
//   - Recovery: turns downstream panics into errors
//   - Journal: appends an execution record after each invocation
//   - DeadLetter: parks events that failed permanently
//   - Holder: installs the event as the current event downstream
//
// A typical chain puts Recovery outermost and Journal next, so that every
// invocation is recorded even when an inner policy fails:
//
//	op := policy.Chain(factory, target,
//	    policies.Recovery(),
//	    policies.Journal(store, "ingest"),
//	    policies.Retry(eperrors.DefaultRetry),
//	    policies.RateLimit(100, 10, policies.ByCorrelationID),
//	)
package policies
