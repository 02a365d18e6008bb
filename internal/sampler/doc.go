// Package sampler drives periodic metric collection: Go runtime samples,
// Prometheus exposition scrapes of configured targets, and TLS certificate
// expiry probes. Every collected value flows through the ingestor so the
// same persistence and alerting path applies to pushed and sampled metrics.
package sampler
