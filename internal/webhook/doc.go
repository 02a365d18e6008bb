// Package webhook delivers events to externally registered HTTP endpoints.
// Each delivery is signed with the endpoint's HMAC secret when one is set,
// bounded by the endpoint's timeout, recorded as a WebhookDelivery row, and
// reflected in the endpoint's aggregate statistics. Failed deliveries are
// terminal; re-delivery requires an explicit external mechanism.
package webhook
