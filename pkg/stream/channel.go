package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/tradeflow/pkg/domain"
)

// DefaultKeepAlive is the interval between keep-alive pulses on an idle subscription.
const DefaultKeepAlive = 15 * time.Second

// ErrPreempted is returned by Pump when a newer Connect replaced the subscription.
var ErrPreempted = errors.New("stream subscription preempted by a newer connection")

// Channel is the single-shot rendezvous for one workflow id.
// At any time it holds a buffered payload, a waiting subscriber, or neither.
type Channel struct {
	mu       sync.Mutex
	payload  []byte
	buffered bool
	since    time.Time
	waiter   *Subscription
	now      func() time.Time
}

// NewChannel returns an empty channel.
func NewChannel() *Channel {
	return &Channel{now: time.Now}
}

// Connect returns a subscription. If a payload is buffered it is handed over at once and the
// buffer is cleared; otherwise the subscription becomes the waiter, preempting any previous one.
func (c *Channel) Connect() *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub := newSubscription()
	sub.release = func() { c.release(sub) }
	c.connectLocked(sub)
	return sub
}

// Emit delivers payload to the waiter and reports true, or buffers it (replacing any
// unconsumed payload) and reports false.
func (c *Channel) Emit(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emitLocked(payload)
}

// Pending reports whether a payload is buffered.
func (c *Channel) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffered
}

// Waiting reports whether a subscriber is registered.
func (c *Channel) Waiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiter != nil
}

func (c *Channel) connectLocked(sub *Subscription) {
	if c.buffered {
		sub.deliver(c.payload)
		c.payload, c.buffered = nil, false
		return
	}
	if c.waiter != nil {
		c.waiter.preempt()
	}
	c.waiter = sub
}

func (c *Channel) emitLocked(payload []byte) bool {
	data := append([]byte(nil), payload...)
	if c.waiter != nil {
		c.waiter.deliver(data)
		c.waiter = nil
		return true
	}
	c.payload, c.buffered = data, true
	c.since = c.now()
	return false
}

func (c *Channel) release(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked(sub)
}

func (c *Channel) releaseLocked(sub *Subscription) {
	if c.waiter == sub {
		c.waiter = nil
	}
}

func (c *Channel) idleLocked() bool {
	return !c.buffered && c.waiter == nil
}

// Subscription is one consumer's view of a Channel.
type Subscription struct {
	payload  chan []byte
	done     chan struct{}
	doneOnce sync.Once
	release  func()
	closed   sync.Once
}

func newSubscription() *Subscription {
	return &Subscription{
		payload: make(chan []byte, 1),
		done:    make(chan struct{}),
	}
}

// Payload yields the delivered payload, at most once.
func (s *Subscription) Payload() <-chan []byte {
	return s.payload
}

// Preempted is closed when a newer Connect replaces this subscription.
func (s *Subscription) Preempted() <-chan struct{} {
	return s.done
}

// Close stops waiting and clears this subscription from its channel. Safe to call twice.
func (s *Subscription) Close() {
	s.closed.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

func (s *Subscription) deliver(p []byte) {
	select {
	case s.payload <- p:
	default:
	}
}

func (s *Subscription) preempt() {
	s.doneOnce.Do(func() { close(s.done) })
}

// EventWriter is the transport side of a subscription.
type EventWriter interface {
	WriteEvent(data []byte) error
	WriteKeepAlive() error
}

// Pump writes the payload, or keep-alive pulses until the payload arrives, the subscription
// is preempted, or ctx ends. The subscription is always closed on return.
func (s *Subscription) Pump(ctx context.Context, w EventWriter, keepAlive time.Duration) error {
	defer s.Close()
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case p := <-s.payload:
			return w.WriteEvent(p)
		case <-s.done:
			return ErrPreempted
		case <-ctx.Done():
			// A payload already handed over still goes out.
			select {
			case p := <-s.payload:
				return w.WriteEvent(p)
			default:
			}
			return fmt.Errorf("%w: %v", domain.ErrStreamDisconnected, ctx.Err())
		case <-ticker.C:
			if err := w.WriteKeepAlive(); err != nil {
				return fmt.Errorf("%w: %v", domain.ErrStreamDisconnected, err)
			}
		}
	}
}
