package notifiers

import "context"

// Notifier delivers one message per new item to a downstream channel
// (chat webhook, bot API, queue, topic).
type Notifier interface {
	ID() string
	Type() string
	Notify(ctx context.Context, msg Message) error
}
