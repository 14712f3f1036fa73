package application

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	log "github.com/sirupsen/logrus"
)

const dispatcherQueueSize = 128

type job struct {
	fn func() error
	// errc, if set, receives the result of fn once afterJob completed.
	errc chan error
}

// dispatcher runs jobs one at a time on a single goroutine. Every access to
// the state machine goes through it.
type dispatcher struct {
	jobs chan job
	quit chan struct{}
	wg   *sync.WaitGroup

	// afterJob runs after every job, still on the dispatcher goroutine.
	afterJob func()
}

func newDispatcher(afterJob func()) *dispatcher {
	return &dispatcher{
		jobs:     make(chan job, dispatcherQueueSize),
		quit:     make(chan struct{}),
		wg:       &sync.WaitGroup{},
		afterJob: afterJob,
	}
}

func (d *dispatcher) start() {
	d.wg.Add(1)
	go d.loop()
}

func (d *dispatcher) stop() {
	close(d.quit)
	d.wg.Wait()
}

// enqueue schedules fn without waiting for it to run. It is a no-op once the
// dispatcher is stopped.
func (d *dispatcher) enqueue(fn func()) {
	d.push(job{fn: func() error {
		fn()
		return nil
	}})
}

// do schedules fn and waits for its result.
func (d *dispatcher) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	d.push(job{fn: fn, errc: errc})

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.quit:
		return ErrServiceNotStarted
	}
}

func (d *dispatcher) push(j job) {
	select {
	case d.jobs <- j:
	case <-d.quit:
	}
}

func (d *dispatcher) loop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.quit:
			return
		case j := <-d.jobs:
			d.run(j)
		}
	}
}

func (d *dispatcher) run(j job) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("recovered from panic in dispatched job: %v\n%s", r, debug.Stack())
				err = fmt.Errorf("%v", r)
			}
		}()
		return j.fn()
	}()

	if d.afterJob != nil {
		d.afterJob()
	}
	if j.errc != nil {
		j.errc <- err
	}
}
