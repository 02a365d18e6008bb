// Package ws pushes live pipeline status over WebSocket: queue stats and the
// most recent incidents, broadcast to every connected client on an interval.
package ws
