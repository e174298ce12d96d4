// Package eventplane is the root of an in-process event pipeline toolkit.
//
// The packages below it are used directly; this package exports nothing.
//
//   - event: events, messages, sessions and dispatch targets.
//   - holder: the per-execution current event slot.
//   - sink: a sink that buffers events until a delegate is attached.
//   - streambuf: a growable buffer shared by independent read cursors.
//   - policy: interception chains around an operation, with per-execution
//     state, logging, metrics and spans for every node.
//   - policy/policies: stock policies such as retry, rate limiting,
//     journaling and dead lettering.
//   - journal: per-execution records of chain outcomes, in memory or SQLite.
//   - config: YAML and JSON configuration with size parsing.
//   - errors: error categories and retry with backoff.
//   - observability: slog helpers, OpenTelemetry metrics and spans.
//   - registry: a typed, concurrency-safe name to value map.
//
// The eventplane command under cmd/ exposes stream buffer reads and config
// driven policy chains from the shell.
package eventplane
