// Package statemachine implements a small hierarchical state machine.
//
// States are organized in a tree through parent links. The machine always
// resides in a leaf and is conceptually inside every ancestor of that leaf.
// Triggers that the active leaf does not handle bubble up to its ancestors;
// the first state in the chain that maps the trigger wins.
//
// A Machine performs no locking: callers must serialize Fire and Process.
package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrStateAlreadyConfigured = errors.New("state already configured")
	ErrUnknownState           = errors.New("unknown state")
	ErrUnhandledTrigger       = errors.New("trigger not handled")
	ErrNotStarted             = errors.New("state machine not started")
	ErrAlreadyStarted         = errors.New("state machine already started")
)

// Action is a hook run on entry, exit or process of a state.
type Action func()

type stateConfig[S comparable, T comparable] struct {
	id          S
	parent      S
	hasParent   bool
	onEntry     Action
	onExit      Action
	onProcess   Action
	transitions map[T]S
}

// Option configures a state registered with Configure.
type Option[S comparable, T comparable] func(*stateConfig[S, T])

// SubstateOf sets the parent of the configured state.
func SubstateOf[S comparable, T comparable](parent S) Option[S, T] {
	return func(c *stateConfig[S, T]) {
		c.parent = parent
		c.hasParent = true
	}
}

// Permit maps trigger to target in the configured state's transition table.
func Permit[S comparable, T comparable](trigger T, target S) Option[S, T] {
	return func(c *stateConfig[S, T]) {
		c.transitions[trigger] = target
	}
}

func OnEntry[S comparable, T comparable](action Action) Option[S, T] {
	return func(c *stateConfig[S, T]) {
		c.onEntry = action
	}
}

func OnExit[S comparable, T comparable](action Action) Option[S, T] {
	return func(c *stateConfig[S, T]) {
		c.onExit = action
	}
}

func OnProcess[S comparable, T comparable](action Action) Option[S, T] {
	return func(c *stateConfig[S, T]) {
		c.onProcess = action
	}
}

// Machine is a hierarchical state machine over states S and triggers T.
type Machine[S comparable, T comparable] struct {
	states  map[S]*stateConfig[S, T]
	current S
	started bool

	// fires raised while a transition or process hook is running are
	// queued and handled once the running step completes.
	busy  bool
	queue []T

	onUnhandled func(state S, trigger T)
}

func New[S comparable, T comparable]() *Machine[S, T] {
	return &Machine[S, T]{
		states: make(map[S]*stateConfig[S, T]),
		queue:  make([]T, 0),
	}
}

// OnUnhandledTrigger registers a callback invoked whenever a trigger is
// rejected because no state in the active chain handles it.
func (m *Machine[S, T]) OnUnhandledTrigger(fn func(state S, trigger T)) {
	m.onUnhandled = fn
}

// Configure registers a state. Registering the same state twice is an error.
// Transition tables are immutable once the machine is started.
func (m *Machine[S, T]) Configure(state S, opts ...Option[S, T]) error {
	if m.started {
		return ErrAlreadyStarted
	}
	if _, ok := m.states[state]; ok {
		return fmt.Errorf("%w: %v", ErrStateAlreadyConfigured, state)
	}

	cfg := &stateConfig[S, T]{
		id:          state,
		transitions: make(map[T]S),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	m.states[state] = cfg
	return nil
}

// Start validates the configured graph, sets the active leaf and runs the
// entry hooks from the topmost ancestor down to the initial state.
func (m *Machine[S, T]) Start(initial S) error {
	if m.started {
		return ErrAlreadyStarted
	}
	if err := m.validate(); err != nil {
		return err
	}
	if _, ok := m.states[initial]; !ok {
		return fmt.Errorf("%w: %v", ErrUnknownState, initial)
	}

	m.started = true
	m.current = initial

	path := m.chain(initial)
	m.step(func() {
		for i := len(path) - 1; i >= 0; i-- {
			run(path[i].onEntry)
		}
	})

	m.drain()
	return nil
}

// CurrentState returns the active leaf.
func (m *Machine[S, T]) CurrentState() S {
	return m.current
}

// IsInState reports whether state is the active leaf or one of its ancestors.
func (m *Machine[S, T]) IsInState(state S) bool {
	if !m.started {
		return false
	}
	for _, s := range m.chain(m.current) {
		if s.id == state {
			return true
		}
	}
	return false
}

// CanFire reports whether trigger resolves to a transition from the active leaf.
func (m *Machine[S, T]) CanFire(trigger T) bool {
	if !m.started {
		return false
	}
	_, ok := m.resolve(trigger)
	return ok
}

// Fire resolves trigger against the active leaf and its ancestors and
// performs the transition. An unhandled trigger leaves the machine untouched
// and returns ErrUnhandledTrigger. Fires issued from inside a hook are queued.
func (m *Machine[S, T]) Fire(trigger T) error {
	if !m.started {
		return ErrNotStarted
	}
	if m.busy {
		m.queue = append(m.queue, trigger)
		return nil
	}

	err := m.fire(trigger)
	m.drain()
	return err
}

// Process runs the process hook of the active leaf, or of its nearest
// ancestor defining one. At most one hook runs per call.
func (m *Machine[S, T]) Process() {
	if !m.started {
		return
	}

	for _, s := range m.chain(m.current) {
		if s.onProcess == nil {
			continue
		}
		m.step(s.onProcess)
		break
	}

	if !m.busy {
		m.drain()
	}
}

func (m *Machine[S, T]) fire(trigger T) error {
	source := m.current
	target, ok := m.resolve(trigger)
	if !ok {
		if m.onUnhandled != nil {
			m.onUnhandled(source, trigger)
		}
		return fmt.Errorf("%w: %v in state %v", ErrUnhandledTrigger, trigger, source)
	}

	exiting, entering := m.path(source, target)

	m.step(func() {
		for _, s := range exiting {
			run(s.onExit)
		}
		for _, s := range entering {
			run(s.onEntry)
		}
		m.current = target
	})

	return nil
}

// step runs fn with fires queued. If fn panics, the machine is released and
// the fires it queued are dropped before the panic propagates, so the next
// Fire is handled normally. The active leaf is left unchanged in that case.
func (m *Machine[S, T]) step(fn func()) {
	wasBusy := m.busy
	m.busy = true
	defer func() {
		m.busy = wasBusy
		if r := recover(); r != nil {
			if !wasBusy {
				m.queue = m.queue[:0]
			}
			panic(r)
		}
	}()
	fn()
}

func (m *Machine[S, T]) drain() {
	for len(m.queue) > 0 {
		trigger := m.queue[0]
		m.queue = m.queue[1:]
		// nolint
		m.fire(trigger)
	}
}

func (m *Machine[S, T]) resolve(trigger T) (S, bool) {
	for _, s := range m.chain(m.current) {
		if target, ok := s.transitions[trigger]; ok {
			return target, true
		}
	}
	var zero S
	return zero, false
}

// path returns the states to exit (innermost first) and to enter (outermost
// first) when moving from source to target. The common ancestor is searched
// among the proper ancestors of target so that self transitions and
// transitions to an ancestor leave and re-enter the target.
func (m *Machine[S, T]) path(source, target S) (exiting, entering []*stateConfig[S, T]) {
	targetChain := m.chain(target)
	ancestors := make(map[S]struct{}, len(targetChain))
	for _, s := range targetChain[1:] {
		ancestors[s.id] = struct{}{}
	}

	var lca *stateConfig[S, T]
	for _, s := range m.chain(source) {
		if _, ok := ancestors[s.id]; ok {
			lca = s
			break
		}
		exiting = append(exiting, s)
	}

	for _, s := range targetChain {
		if lca != nil && s.id == lca.id {
			break
		}
		entering = append([]*stateConfig[S, T]{s}, entering...)
	}
	return exiting, entering
}

// chain returns state followed by its ancestors up to the root.
func (m *Machine[S, T]) chain(state S) []*stateConfig[S, T] {
	chain := make([]*stateConfig[S, T], 0, 4)
	for s, ok := m.states[state]; ok; {
		chain = append(chain, s)
		if !s.hasParent {
			break
		}
		s, ok = m.states[s.parent]
	}
	return chain
}

func (m *Machine[S, T]) validate() error {
	for id, s := range m.states {
		if s.hasParent {
			if _, ok := m.states[s.parent]; !ok {
				return fmt.Errorf("%w: parent %v of %v", ErrUnknownState, s.parent, id)
			}
		}
		for trigger, target := range s.transitions {
			if _, ok := m.states[target]; !ok {
				return fmt.Errorf(
					"%w: target %v of %v on %v", ErrUnknownState, target, id, trigger,
				)
			}
		}
	}

	for id, s := range m.states {
		visited := map[S]struct{}{id: {}}
		for cur := s; cur.hasParent; cur = m.states[cur.parent] {
			if _, ok := visited[cur.parent]; ok {
				return fmt.Errorf("parent cycle detected at state %v", id)
			}
			visited[cur.parent] = struct{}{}
		}
	}
	return nil
}

func run(action Action) {
	if action != nil {
		action()
	}
}
