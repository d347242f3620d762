package channel

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/flemzord/autoreply/pkg/message"
)

// Dispatcher routes outbound messages and admin calls to the channel named
// by the message.
type Dispatcher struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{channels: make(map[string]Channel)}
}

// Register adds ch under name.
func (d *Dispatcher) Register(name string, ch Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.channels[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateChannel, name)
	}
	d.channels[name] = ch
	return nil
}

// Get returns the channel registered under name.
func (d *Dispatcher) Get(name string) (Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[name]
	return ch, ok
}

// Admin returns the admin capability of the named channel, if it has one.
func (d *Dispatcher) Admin(name string) (Admin, bool) {
	ch, ok := d.Get(name)
	if !ok {
		return nil, false
	}
	a, ok := ch.(Admin)
	return a, ok
}

// Send delivers msg through the channel named by msg.Channel.
func (d *Dispatcher) Send(ctx context.Context, msg message.OutboundMessage) error {
	ch, ok := d.Get(msg.Channel)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoChannel, msg.Channel)
	}
	return ch.Send(ctx, msg)
}

// Channels returns the registered channel names, sorted.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.channels))
	for name := range d.channels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
