// Package types defines the shared domain types of the Pulse pipeline:
// events, metrics, alert rules, incidents, and webhook records. These are
// the canonical in-memory representations used by every internal package
// and by application code embedding the pipeline.
package types
