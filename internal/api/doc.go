// Package api is the HTTP surface of pulsed: event and metric ingestion,
// incident and rule listings, and operational health endpoints, all under
// /api/v1/ and returning JSON.
package api
