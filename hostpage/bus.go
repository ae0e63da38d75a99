package hostpage

import (
	evbus "github.com/asaskevich/EventBus"
)

// Topic is the bus topic messages are published on.
const Topic = "powcaptcha:message"

// Bus fans messages out to in-process subscribers such as the dashboard's
// event stream.
type Bus struct {
	bus evbus.Bus
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{bus: evbus.New()}
}

// Post publishes m to every subscriber.  Synchronous subscribers have run
// when Post returns.
func (b *Bus) Post(m Message) error {
	b.bus.Publish(Topic, m)
	return nil
}

// Subscribe registers fn to run on the publishing goroutine.
func (b *Bus) Subscribe(fn func(Message)) error {
	return b.bus.Subscribe(Topic, fn)
}

// SubscribeAsync registers fn to run on its own goroutine, one message at a
// time.
func (b *Bus) SubscribeAsync(fn func(Message)) error {
	return b.bus.SubscribeAsync(Topic, fn, true)
}

// Unsubscribe removes a handler registered with Subscribe or SubscribeAsync.
func (b *Bus) Unsubscribe(fn func(Message)) error {
	return b.bus.Unsubscribe(Topic, fn)
}

// HasSubscribers reports whether any handler is registered.
func (b *Bus) HasSubscribers() bool {
	return b.bus.HasCallback(Topic)
}

// Wait blocks until asynchronous handlers have drained.
func (b *Bus) Wait() {
	b.bus.WaitAsync()
}
