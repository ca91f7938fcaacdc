package bus

import "time"

// InboundMessage is one chat message delivered by a chat-client listener.
type InboundMessage struct {
	Group     string
	Sender    string
	Content   string
	Timestamp time.Time
}

// MessageBus decouples chat-client callback goroutines from the monitor's
// processing loop. Listeners publish, a single consumer drains Inbound.
type MessageBus struct {
	Inbound chan InboundMessage
}

func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{
		Inbound: make(chan InboundMessage, bufSize),
	}
}

// Publish enqueues a message without blocking the chat-client callback.
// Returns false when the consumer has fallen a full buffer behind.
func (b *MessageBus) Publish(msg InboundMessage) bool {
	select {
	case b.Inbound <- msg:
		return true
	default:
		return false
	}
}
