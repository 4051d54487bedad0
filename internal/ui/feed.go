package ui

import (
	"sync"

	"github.com/desertthunder/studyctl/internal/chat"
)

// feed buffers controller updates between the bus and the bubbletea loop.
//
// push never blocks, so bus handlers do not stall the controller while the UI renders.
type feed struct {
	mu     sync.Mutex
	items  []chat.Update
	ready  chan struct{}
	closed bool
}

func newFeed() *feed {
	return &feed{ready: make(chan struct{}, 1)}
}

func (f *feed) push(u chat.Update) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.items = append(f.items, u)
	f.mu.Unlock()

	select {
	case f.ready <- struct{}{}:
	default:
	}
}

// next blocks until updates are available and returns all of them. It returns nil after close.
func (f *feed) next() []chat.Update {
	for {
		f.mu.Lock()
		if len(f.items) > 0 {
			items := f.items
			f.items = nil
			f.mu.Unlock()
			return items
		}
		if f.closed {
			f.mu.Unlock()
			return nil
		}
		f.mu.Unlock()
		<-f.ready
	}
}

func (f *feed) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	select {
	case f.ready <- struct{}{}:
	default:
	}
}
