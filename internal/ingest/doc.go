// Package ingest accepts metric points, persists them, and synchronously
// feeds each point to the alert evaluator. It also provides the composite
// producers for API traffic and system samples.
package ingest
