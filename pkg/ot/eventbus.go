package ot

import "sync"

// Listener receives event payloads fired on an EventBus. The payload shape
// depends on the event name: operationChanged fires an int index;
// beforeOperationsInserted/afterOperationsInserted/beforeOperationsRemoved/
// afterOperationsRemoved fire a Range{Start, End}.
type Listener func(payload any)

// Token identifies a single subscription so it can be removed again without
// relying on function identity, which Go cannot compare for closures.
type Token struct {
	name string
	id   uint64
}

// EventBus is a named, multi-listener, synchronous publish channel. It is
// embedded in OpManager so observers (storage listeners, table views,
// reconcilers) can track structural changes without polling. Listeners run
// synchronously, in subscription order, before Fire returns; a listener must
// not re-enter a mutating call on the manager that owns this bus.
type EventBus struct {
	mu        sync.Mutex
	listeners map[string][]subscription
	nextID    uint64
}

type subscription struct {
	id uint64
	fn Listener
}

// Subscribe registers fn under the named event and returns a token that can
// later be passed to Unsubscribe. Safe for concurrent use.
func (b *EventBus) Subscribe(name string, fn Listener) Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listeners == nil {
		b.listeners = make(map[string][]subscription)
	}
	b.nextID++
	id := b.nextID
	b.listeners[name] = append(b.listeners[name], subscription{id: id, fn: fn})
	return Token{name: name, id: id}
}

// Unsubscribe removes a previously registered listener. Unknown tokens are
// ignored, so repeated teardown calls are safe.
func (b *EventBus) Unsubscribe(t Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.listeners[t.name]
	for i, s := range subs {
		if s.id == t.id {
			b.listeners[t.name] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Fire synchronously invokes every listener registered under name, in
// registration order, with payload.
func (b *EventBus) Fire(name string, payload any) {
	b.mu.Lock()
	subs := append([]subscription(nil), b.listeners[name]...)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(payload)
	}
}

// Range is the payload shape for insert/remove range events.
type Range struct {
	Start int
	End   int
}
