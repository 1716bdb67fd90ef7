// Package relay provides the websocket client for the speech backend.
//
// It supports protocol v1/v2/v3 binary framing, hello/session negotiation,
// capture stream control, and transcript delivery.
package relay
