// Package broker fans out events to multiple listeners.
package broker

import (
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	defaultBufferSize  = 64
	defaultSendTimeout = 5 * time.Second
)

type listener[T any] struct {
	id string
	ch chan T
}

// Broker is a thread safe utility to send events to multiple listeners.
// Events are delivered to every listener in the order they are published.
// A listener that does not drain its channel within the send timeout misses
// the event.
type Broker[T any] struct {
	lock        *sync.Mutex
	listeners   []*listener[T]
	sendTimeout time.Duration
	closed      bool
}

func New[T any]() *Broker[T] {
	return &Broker[T]{
		lock:        &sync.Mutex{},
		listeners:   make([]*listener[T], 0),
		sendTimeout: defaultSendTimeout,
	}
}

// Subscribe returns a new listener channel and the function that removes it.
func (b *Broker[T]) Subscribe() (<-chan T, func()) {
	b.lock.Lock()
	defer b.lock.Unlock()

	l := &listener[T]{
		id: uuid.NewString(),
		ch: make(chan T, defaultBufferSize),
	}
	if b.closed {
		close(l.ch)
		return l.ch, func() {}
	}
	b.listeners = append(b.listeners, l)

	return l.ch, func() { b.removeListener(l.id) }
}

func (b *Broker[T]) Publish(event T) {
	b.lock.Lock()
	defer b.lock.Unlock()

	for _, l := range b.listeners {
		select {
		case l.ch <- event:
		default:
			timer := time.NewTimer(b.sendTimeout)
			select {
			case l.ch <- event:
			case <-timer.C:
				log.Warnf("listener %s is too slow, event dropped", l.id)
			}
			timer.Stop()
		}
	}
}

func (b *Broker[T]) Len() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.listeners)
}

// Close closes every listener channel. Publishing after Close is a no-op.
func (b *Broker[T]) Close() {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, l := range b.listeners {
		close(l.ch)
	}
	b.listeners = nil
}

func (b *Broker[T]) removeListener(id string) {
	b.lock.Lock()
	defer b.lock.Unlock()

	for i, l := range b.listeners {
		if l.id == id {
			close(l.ch)
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}
