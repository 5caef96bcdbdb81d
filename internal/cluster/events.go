package cluster

import (
	"sync"

	"github.com/aonescu/kubedit/internal/resource"
)

type EventType string

const (
	EventAdded    EventType = "Added"
	EventModified EventType = "Modified"
	EventRemoved  EventType = "Removed"
	// EventError reports that the change stream failed. It is not restarted until
	// Watch is called again.
	EventError EventType = "Error"
)

// Event is delivered to listeners in the order the server sent it. Snapshot is nil for
// removals and errors.
type Event struct {
	Type     EventType
	Identity resource.Identity
	Snapshot *resource.Snapshot
	Err      error
}

// listener buffers events without bound so that delivery never waits on a slow consumer
// and nothing is dropped or merged.
type listener struct {
	mu     sync.Mutex
	queue  []Event
	signal chan struct{}
	out    chan Event
	done   chan struct{}
	once   sync.Once
}

func newListener() *listener {
	l := &listener{
		signal: make(chan struct{}, 1),
		out:    make(chan Event),
		done:   make(chan struct{}),
	}
	go l.pump()
	return l
}

func (l *listener) push(event Event) {
	l.mu.Lock()
	l.queue = append(l.queue, event)
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *listener) next() (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return Event{}, false
	}
	event := l.queue[0]
	l.queue[0] = Event{}
	l.queue = l.queue[1:]
	return event, true
}

func (l *listener) pump() {
	defer close(l.out)
	for {
		select {
		case <-l.signal:
		case <-l.done:
			return
		}
		for {
			event, ok := l.next()
			if !ok {
				break
			}
			select {
			case l.out <- event:
			case <-l.done:
				return
			}
		}
	}
}

func (l *listener) stop() {
	l.once.Do(func() { close(l.done) })
}
