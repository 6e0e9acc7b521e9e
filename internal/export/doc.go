// Package export provides the publishers a push.Registry drives.
//
// Every exporter snapshots a prometheus.Gatherer on each Publish and ships
// the result somewhere:
//   - "log": one structured log line per publish
//   - "file": JSON Lines appended to a local file
//   - "http": Prometheus text format PUT to a push gateway
//   - "nats": a JSON batch published on a NATS subject
//   - "sqlite": rows in a local SQLite database, pruned by retention
//
// Exporters never retry; a failed Publish is reported to the caller and the
// next trigger starts from a fresh snapshot.
package export
