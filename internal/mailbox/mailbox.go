// Package mailbox delivers inbound worker messages to a single handler in
// arrival order, holding them until the handler is registered.
package mailbox

import (
	"sync"
	"sync/atomic"

	"github.com/progcompcl/ide/schema"
)

type item struct {
	msg schema.WorkerMessage
	err error
}

// Mailbox is an unbounded FIFO with one delivery goroutine. Producers never
// block.
type Mailbox struct {
	closed atomic.Bool
	done   chan struct{}

	mu        sync.Mutex
	queue     []item
	signal    chan struct{}
	onMessage func(schema.WorkerMessage)
	onError   func(error)
	started   bool
}

// New constructs an empty mailbox.
func New() *Mailbox {
	return &Mailbox{
		done:   make(chan struct{}),
		signal: make(chan struct{}, 1),
	}
}

// OnMessage registers the message handler and starts delivery.
func (m *Mailbox) OnMessage(handler func(schema.WorkerMessage)) {
	m.mu.Lock()
	m.onMessage = handler
	start := !m.started
	m.started = true
	m.mu.Unlock()
	if start {
		go m.deliver()
	}
}

// OnError registers the failure handler.
func (m *Mailbox) OnError(handler func(error)) {
	m.mu.Lock()
	m.onError = handler
	m.mu.Unlock()
}

// PushMessage queues a worker message.
func (m *Mailbox) PushMessage(msg schema.WorkerMessage) {
	m.push(item{msg: msg})
}

// PushError queues a channel failure behind any earlier messages.
func (m *Mailbox) PushError(err error) {
	m.push(item{err: err})
}

// Close stops delivery and drops queued items. It reports whether this call
// closed the mailbox.
func (m *Mailbox) Close() bool {
	if m.closed.Swap(true) {
		return false
	}
	close(m.done)
	m.mu.Lock()
	m.queue = nil
	m.mu.Unlock()
	return true
}

// Closed reports whether Close was called.
func (m *Mailbox) Closed() bool {
	return m.closed.Load()
}

// Done is closed by Close.
func (m *Mailbox) Done() <-chan struct{} {
	return m.done
}

// Len returns the number of undelivered items.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *Mailbox) push(it item) {
	if m.closed.Load() {
		return
	}
	m.mu.Lock()
	m.queue = append(m.queue, it)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *Mailbox) pop() (item, bool) {
	for {
		if m.closed.Load() {
			return item{}, false
		}
		m.mu.Lock()
		if len(m.queue) > 0 {
			it := m.queue[0]
			m.queue[0] = item{}
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return it, true
		}
		m.mu.Unlock()
		select {
		case <-m.signal:
		case <-m.done:
			return item{}, false
		}
	}
}

func (m *Mailbox) deliver() {
	for {
		it, ok := m.pop()
		if !ok {
			return
		}
		m.mu.Lock()
		onMessage, onError := m.onMessage, m.onError
		m.mu.Unlock()
		if m.closed.Load() {
			return
		}
		if it.err != nil {
			if onError != nil {
				onError(it.err)
			}
			continue
		}
		if onMessage != nil {
			onMessage(it.msg)
		}
	}
}
