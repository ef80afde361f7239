package roomstore

import "sync"

// Feed hands snapshots to a SnapshotFunc on its own goroutine. Only the
// latest undelivered snapshot is kept, and snapshots whose revision is not
// newer than the last accepted one are dropped. A deletion resets the
// revision floor so a recreated document is delivered again.
type Feed struct {
	fn SnapshotFunc

	mu      sync.Mutex
	pending []byte
	queued  bool
	lastRev int64
	closed  bool

	wake chan struct{}
	quit chan struct{}
	once sync.Once
}

func NewFeed(fn SnapshotFunc) *Feed {
	f := &Feed{
		fn:   fn,
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
	}
	go f.loop()
	return f
}

// Offer queues doc for delivery and never blocks.
func (f *Feed) Offer(doc []byte) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if doc == nil {
		f.lastRev = 0
		f.pending, f.queued = nil, true
	} else {
		rev := Revision(doc)
		if rev != 0 && rev <= f.lastRev {
			f.mu.Unlock()
			return
		}
		f.lastRev = rev
		f.pending, f.queued = append([]byte(nil), doc...), true
	}
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Close stops delivery. A callback already running is not interrupted.
func (f *Feed) Close() {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.pending, f.queued = nil, false
		f.mu.Unlock()
		close(f.quit)
	})
}

// Done is closed once the feed stops.
func (f *Feed) Done() <-chan struct{} { return f.quit }

func (f *Feed) loop() {
	for {
		select {
		case <-f.quit:
			return
		case <-f.wake:
		}
		f.mu.Lock()
		doc, ok := f.pending, f.queued
		f.pending, f.queued = nil, false
		closed := f.closed
		f.mu.Unlock()
		if ok && !closed {
			f.fn(doc)
		}
	}
}
