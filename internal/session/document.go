package session

import (
	"sync"
)

// Document is the local text a session keeps in sync. Changes fires after local edits;
// it may coalesce bursts of edits into one signal.
type Document interface {
	Path() string
	Read() ([]byte, error)
	Write(text []byte) error
	Rename(newBase string) error
	Changes() <-chan struct{}
}

// Dispatcher runs document mutations on the context that owns the document.
type Dispatcher interface {
	Do(fn func() error) error
}

// InlineDispatcher runs fn on the calling goroutine.
type InlineDispatcher struct{}

func (InlineDispatcher) Do(fn func() error) error {
	return fn()
}

// SerialDispatcher runs every fn on a single goroutine, one at a time. Do must not be
// called from inside a dispatched fn.
type SerialDispatcher struct {
	tasks chan task
	done  chan struct{}
	once  sync.Once
}

type task struct {
	fn     func() error
	result chan error
}

func NewSerialDispatcher() *SerialDispatcher {
	d := &SerialDispatcher{
		tasks: make(chan task),
		done:  make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *SerialDispatcher) loop() {
	for {
		select {
		case t := <-d.tasks:
			t.result <- t.fn()
		case <-d.done:
			return
		}
	}
}

func (d *SerialDispatcher) Do(fn func() error) error {
	t := task{fn: fn, result: make(chan error, 1)}
	select {
	case d.tasks <- t:
	case <-d.done:
		return errDispatcherClosed
	}
	return <-t.result
}

func (d *SerialDispatcher) Close() {
	d.once.Do(func() { close(d.done) })
}
