// Package hub provides a websocket broadcast hub using the channel-based
// fan-out pattern: one goroutine owns the client set, one writer goroutine
// per connection.
package hub

// Message is one pre-encoded JSON text frame.
type Message struct {
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}
