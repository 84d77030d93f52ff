package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	// WaitTimeout is the maximum time a client can wait for a session change
	WaitTimeout = 25 * time.Second

	waitChannelBuffer = 1
)

// WaitRegistry parks long-polling clients until an identity's session moves
// past the version they last saw. The version is the session's change
// counter, see Coordinator.Version.
type WaitRegistry struct {
	mu       sync.Mutex
	waiters  map[string][]*waitRequest // identity → waiting clients
	shutdown chan struct{}
	closed   bool
	wg       sync.WaitGroup
	timeout  time.Duration
}

type waitRequest struct {
	version int64
	notify  chan struct{}
	timer   *time.Timer
	done    chan struct{}
	once    sync.Once
}

// fire wakes the client once and ends its watch goroutine
func (r *waitRequest) fire() {
	r.once.Do(func() {
		if r.timer != nil {
			r.timer.Stop()
		}
		select {
		case r.notify <- struct{}{}:
		default:
		}
		close(r.done)
	})
}

// NewWaitRegistry creates an empty registry
func NewWaitRegistry() *WaitRegistry {
	return &WaitRegistry{
		waiters:  make(map[string][]*waitRequest),
		shutdown: make(chan struct{}),
		timeout:  WaitTimeout,
	}
}

// Register returns a channel that receives once the identity's version
// differs from version, the wait times out, or ctx ends. cancel withdraws
// the registration early.
func (w *WaitRegistry) Register(ctx context.Context, identity string, version int64) (notify <-chan struct{}, cancel func()) {
	req := &waitRequest{
		version: version,
		notify:  make(chan struct{}, waitChannelBuffer),
		done:    make(chan struct{}),
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		close(req.notify)
		return req.notify, func() {}
	}
	req.timer = time.AfterFunc(w.timeout, func() {
		w.remove(identity, req)
		req.fire()
	})
	w.waiters[identity] = append(w.waiters[identity], req)
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		select {
		case <-ctx.Done():
			w.remove(identity, req)
			req.fire()
		case <-w.shutdown:
			req.fire()
		case <-req.done:
		}
	}()

	return req.notify, func() {
		w.remove(identity, req)
		req.fire()
	}
}

// Notify wakes waiters on identity whose known version is stale
func (w *WaitRegistry) Notify(identity string, version int64) {
	w.mu.Lock()
	list := w.waiters[identity]
	var keep []*waitRequest
	for _, req := range list {
		if req.version != version {
			req.fire()
			continue
		}
		keep = append(keep, req)
	}
	if len(keep) == 0 {
		delete(w.waiters, identity)
	} else {
		w.waiters[identity] = keep
	}
	w.mu.Unlock()
}

// Drop wakes and forgets every waiter on identity, used when the session is removed
func (w *WaitRegistry) Drop(identity string) {
	w.mu.Lock()
	list := w.waiters[identity]
	delete(w.waiters, identity)
	w.mu.Unlock()

	for _, req := range list {
		req.fire()
	}
}

// Len returns the number of parked clients
func (w *WaitRegistry) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, list := range w.waiters {
		n += len(list)
	}
	return n
}

// Shutdown releases every parked client and waits for their goroutines
func (w *WaitRegistry) Shutdown(timeout time.Duration) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.shutdown)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("wait registry shutdown timed out")
	}
}

func (w *WaitRegistry) remove(identity string, req *waitRequest) {
	w.mu.Lock()
	defer w.mu.Unlock()

	list := w.waiters[identity]
	for i, r := range list {
		if r == req {
			w.waiters[identity] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(w.waiters[identity]) == 0 {
		delete(w.waiters, identity)
	}
}
