// Package publisher defines the notification publishing contract shared by
// the memory and Pub/Sub implementations.
package publisher

import "context"

// Message is one outbound notification. Payload is JSON-encoded by
// implementations that cross a process boundary.
type Message struct {
	Topic      string
	Attributes map[string]string
	Payload    any
}

// Publisher sends notifications and returns the broker-assigned message ID.
type Publisher interface {
	Publish(ctx context.Context, msg Message) (string, error)
}
