// Package cascade is a multi-tenant, content-addressed storage (CAS) service.
//
// Blobs are immutable byte sequences keyed by their SHA-256 digest and are
// organised into a DAG of chunks, files and named collections. On top of the
// raw CAS sit commits (immutable labelled snapshots pinning a root key) and
// depots (named, versioned, mutable pointers with rollback history), together
// with per-realm reference counting, quota enforcement and time-delayed
// garbage collection.
//
// The root package holds the shared types and the store contracts. Backing
// implementations live in subpackages: cassandra (record stores), fs / aws_s3
// / cassandra (blob stores), redis (L2 cache), inmemory (tests and
// prototyping). The orchestration core is in the common package, the HTTP
// surface in restapi and the collector in gc.
package cascade
