// Package control implements the per-session control channel used for liveness
// signaling (ping/pong) between a client-facing session and the gateway fleet.
//
// Every session owns one pub/sub topic named <namespace>:<sessionId>. Events are
// JSON encoded two-element arrays [eventType, payload] where eventType is either
// "message" or "close". Emitting always goes through the bus: a process never
// delivers its own events locally, handlers only fire once the publish comes back
// through the session's own subscription. Delivery is therefore identical whether
// the publisher and subscriber share a process or not.
package control
