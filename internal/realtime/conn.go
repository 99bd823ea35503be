// Package realtime routes application events to a specific user's open
// connection, bridging same-process and cross-process delivery through the
// broker.
package realtime

// Conn is a live outbound connection able to receive wire payloads.
type Conn interface {
	// Send enqueues a payload for delivery to the peer. It must not block:
	// a closed or backlogged connection returns an error and the payload
	// is lost, so a slow client never stalls the caller.
	Send(payload []byte) error
}
