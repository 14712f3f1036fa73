package simulatedwallet

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type notify struct {
	lock     *sync.RWMutex
	handlers map[string]func()
}

func newNotify() *notify {
	return &notify{
		lock:     &sync.RWMutex{},
		handlers: make(map[string]func()),
	}
}

func (s *service) RegisterCoinsHandler(handler func()) func() {
	return s.notify.register(handler)
}

func (n *notify) register(handler func()) func() {
	id := uuid.New().String()

	n.lock.Lock()
	n.handlers[id] = handler
	n.lock.Unlock()

	return func() {
		n.lock.Lock()
		defer n.lock.Unlock()
		delete(n.handlers, id)
	}
}

func (n *notify) coinsChanged() {
	n.lock.RLock()
	handlers := make([]func(), 0, len(n.handlers))
	for _, h := range n.handlers {
		handlers = append(handlers, h)
	}
	n.lock.RUnlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("recovered from panic in coins handler: %v", r)
				}
			}()
			handler()
		}()
	}
}

func (n *notify) close() {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.handlers = make(map[string]func())
}
