// Package history records what happens to hosted Things.
//
// A Recorder observes the thing.Registry, queues every property change and
// event emission, and hands them to one or more Sinks on a worker
// goroutine so Thing operations never wait on storage:
//
//	SQLiteStore  property_history and event_log tables, queryable by the API
//	InfluxSink   numeric and boolean property values plus event counts
//
// Thing state itself stays in memory. History is an audit trail, not a
// source of truth, and a full queue drops changes rather than blocking.
//
// Retention: when a positive retention is configured the Recorder prunes
// the SQLite tables once an hour.
package history
