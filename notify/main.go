// Package notify fans out values to subscribers.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPatience is how long Send waits on one subscriber before skipping it.
const DefaultPatience = 200 * time.Millisecond

// MultiplexerSender is the sending half of a Multiplexer; keep it to whoever produces the values.
type MultiplexerSender[E any] struct {
	m *Multiplexer[E]
}

// NewMultiplexerSender returns a Multiplexer, and the only way to send on it.
func NewMultiplexerSender[E any](name string) (*MultiplexerSender[E], *Multiplexer[E]) {
	m := &Multiplexer[E]{
		name:     name,
		patience: DefaultPatience,
		subs:     map[chan E]string{},
	}
	return &MultiplexerSender[E]{m: m}, m
}

// Send blocks until every subscriber has e or has been skipped, and returns how many got it.
// Values reach each subscriber in the order they were sent.
func (ms *MultiplexerSender[E]) Send(e E) int {
	return ms.m.deliver(e)
}

// Multiplexer is the subscribing half.
type Multiplexer[E any] struct {
	name     string
	patience time.Duration

	lock    sync.Mutex
	subs    map[chan E]string
	skipped int
}

// SetPatience changes how long Send waits on each subscriber.
func (m *Multiplexer[E]) SetPatience(d time.Duration) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.patience = d
}

// Subscribe starts sending to ch. name shows up in logs.
func (m *Multiplexer[E]) Subscribe(name string, ch chan E) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.subs[ch] = name
}

// Unsubscribe stops sending to ch. It panics if ch isn't subscribed.
func (m *Multiplexer[E]) Unsubscribe(ch chan E) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.subs[ch]; !ok {
		panic("notify: unsubscribing a channel that isn't subscribed")
	}
	delete(m.subs, ch)
}

// Len returns the number of subscribers.
func (m *Multiplexer[E]) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.subs)
}

// Skipped returns how many times a subscriber was skipped for being slow.
func (m *Multiplexer[E]) Skipped() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.skipped
}

func (m *Multiplexer[E]) deliver(e E) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	got := 0
	for ch, name := range m.subs {
		timer := time.NewTimer(m.patience)
		select {
		case ch <- e:
			got++
		case <-timer.C:
			m.skipped++
			zap.S().Warnw("notify: subscriber too slow, skipped", "multiplexer", m.name, "subscriber", name)
		}
		timer.Stop()
	}
	return got
}
