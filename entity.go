package cbgroup

import (
	"sync"
	"time"

	"github.com/AnatoleLucet/cbgroup/internal"
)

// executable is what an executor needs from an entity.
type executable interface {
	// reports whether take would currently succeed
	ready(now time.Time) bool

	// consumes one unit of work and returns the callback bound to it
	take(now time.Time) (func(), bool)

	owner() *Node
}

type entity struct {
	group *Group
	node  *Node
}

// Group returns the group the entity registered with.
func (e *entity) Group() *Group { return e.group }

func (e *entity) owner() *Node { return e.node }

func mustGroup(g *Group) *Group {
	if g == nil {
		panic("cbgroup: entity created without a callback group")
	}
	return g
}

type Subscription struct {
	entity

	callback func(msg any)
	inbox    *internal.Queue[any]
}

// NewSubscription creates a subscription and registers it with g.
func NewSubscription(g *Group, callback func(msg any)) *Subscription {
	return newSubscription(g, nil, callback)
}

func newSubscription(g *Group, n *Node, callback func(msg any)) *Subscription {
	s := &Subscription{
		entity:   entity{group: mustGroup(g), node: n},
		callback: callback,
		inbox:    internal.NewQueue[any](),
	}
	g.AddSubscription(s)

	return s
}

// Deliver queues a message for the subscription callback.
func (s *Subscription) Deliver(msg any) { s.inbox.Enqueue(msg) }

// Pending returns the number of undelivered messages.
func (s *Subscription) Pending() int { return s.inbox.Len() }

func (s *Subscription) ready(time.Time) bool { return s.inbox.Len() > 0 }

func (s *Subscription) take(time.Time) (func(), bool) {
	msg, ok := s.inbox.Dequeue()
	if !ok {
		return nil, false
	}

	return func() { s.callback(msg) }, true
}

type Timer struct {
	entity

	callback func()
	period   time.Duration

	mu       sync.Mutex
	next     time.Time
	canceled bool
}

// NewTimer creates a timer firing every period and registers it with g.
// The first deadline is one period from now.
func NewTimer(g *Group, period time.Duration, callback func()) *Timer {
	return newTimer(g, nil, period, callback)
}

func newTimer(g *Group, n *Node, period time.Duration, callback func()) *Timer {
	if period <= 0 {
		panic("cbgroup: timer period must be positive")
	}

	t := &Timer{
		entity:   entity{group: mustGroup(g), node: n},
		callback: callback,
		period:   period,
		next:     time.Now().Add(period),
	}
	g.AddTimer(t)

	return t
}

func (t *Timer) Period() time.Duration { return t.period }

// Reset re-arms the timer one period from now.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.canceled = false
	t.next = time.Now().Add(t.period)
}

func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.canceled = true
}

func (t *Timer) IsCanceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.canceled
}

// TimeUntilTrigger is negative when the timer is overdue.
func (t *Timer) TimeUntilTrigger() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	return time.Until(t.next)
}

// Pending is 1 while the timer is due and not canceled.
func (t *Timer) Pending() int {
	if t.ready(time.Now()) {
		return 1
	}
	return 0
}

func (t *Timer) ready(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return !t.canceled && !now.Before(t.next)
}

func (t *Timer) take(now time.Time) (func(), bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.canceled || now.Before(t.next) {
		return nil, false
	}

	// skip missed periods instead of firing a burst
	t.next = t.next.Add(t.period)
	if !t.next.After(now) {
		t.next = now.Add(t.period)
	}

	return t.callback, true
}

type request struct {
	payload any
	reply   func(any)
}

type Service struct {
	entity

	callback func(req any) any
	requests *internal.Queue[request]
}

// NewService creates a service and registers it with g.
func NewService(g *Group, callback func(req any) any) *Service {
	return newService(g, nil, callback)
}

func newService(g *Group, n *Node, callback func(req any) any) *Service {
	s := &Service{
		entity:   entity{group: mustGroup(g), node: n},
		callback: callback,
		requests: internal.NewQueue[request](),
	}
	g.AddService(s)

	return s
}

// Handle queues a request. reply, if not nil, receives the callback result
// on the executor goroutine.
func (s *Service) Handle(req any, reply func(resp any)) {
	s.requests.Enqueue(request{payload: req, reply: reply})
}

func (s *Service) Pending() int { return s.requests.Len() }

func (s *Service) ready(time.Time) bool { return s.requests.Len() > 0 }

func (s *Service) take(time.Time) (func(), bool) {
	req, ok := s.requests.Dequeue()
	if !ok {
		return nil, false
	}

	return func() {
		resp := s.callback(req.payload)
		if req.reply != nil {
			req.reply(resp)
		}
	}, true
}

type Client struct {
	entity

	callback  func(resp any)
	responses *internal.Queue[any]
}

// NewClient creates a client and registers it with g.
func NewClient(g *Group, callback func(resp any)) *Client {
	return newClient(g, nil, callback)
}

func newClient(g *Group, n *Node, callback func(resp any)) *Client {
	c := &Client{
		entity:    entity{group: mustGroup(g), node: n},
		callback:  callback,
		responses: internal.NewQueue[any](),
	}
	g.AddClient(c)

	return c
}

// Deliver queues a response for the client callback.
func (c *Client) Deliver(resp any) { c.responses.Enqueue(resp) }

func (c *Client) Pending() int { return c.responses.Len() }

func (c *Client) ready(time.Time) bool { return c.responses.Len() > 0 }

func (c *Client) take(time.Time) (func(), bool) {
	resp, ok := c.responses.Dequeue()
	if !ok {
		return nil, false
	}

	return func() { c.callback(resp) }, true
}
