// Package chat abstracts the messaging client the monitor listens
// through. A client dispatches messages from listened groups onto the
// message bus; everything past the bus is the monitor's concern.
package chat

import "context"

// Client is the narrow surface the monitor drives.
type Client interface {
	// AddListenChat subscribes to a group by display name.
	AddListenChat(group string) error
	// RemoveListenChat drops the subscription for a group.
	RemoveListenChat(group string) error
	// Run blocks dispatching messages until ctx is done.
	Run(ctx context.Context) error
}
