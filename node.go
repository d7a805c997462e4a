package cbgroup

import (
	"slices"
	"sync"
	"time"
)

// Node owns callback entities and groups. Groups only reference entities
// weakly, so an entity lives exactly as long as its node (or whoever else
// holds it) keeps it.
type Node struct {
	name string

	mu sync.Mutex

	defaultGroup *Group
	groups       []*Group

	// strong references keeping entities alive
	children []executable

	// cleanup functions to be called when the node is disposed
	cleanups []func()

	// callback panic handlers
	catchers []func(any)
}

func NewNode(name string) *Node {
	return &Node{
		name:     name,
		cleanups: make([]func(), 0),
	}
}

func (n *Node) Name() string { return n.name }

// DefaultGroup returns the mutually exclusive group used when an entity is
// created without one.
func (n *Node) DefaultGroup() *Group {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.defaultGroupLocked()
}

func (n *Node) defaultGroupLocked() *Group {
	if n.defaultGroup == nil {
		n.defaultGroup = NewGroup(MutuallyExclusive, RealTimeNone)
		n.groups = append(n.groups, n.defaultGroup)
	}

	return n.defaultGroup
}

func (n *Node) CreateGroup(typ GroupType, class RealTimeClass) *Group {
	g := NewGroup(typ, class)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.groups = append(n.groups, g)

	return g
}

// Groups returns the groups created through this node, default group included.
func (n *Node) Groups() []*Group {
	n.mu.Lock()
	defer n.mu.Unlock()

	return slices.Clone(n.groups)
}

func (n *Node) resolve(g *Group) *Group {
	if g != nil {
		return g
	}

	return n.DefaultGroup()
}

func (n *Node) adopt(e executable) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.children = append(n.children, e)
}

// CreateSubscription creates a subscription owned by the node. A nil group
// means the node's default group.
func (n *Node) CreateSubscription(g *Group, callback func(msg any)) *Subscription {
	s := newSubscription(n.resolve(g), n, callback)
	n.adopt(s)
	return s
}

func (n *Node) CreateTimer(g *Group, period time.Duration, callback func()) *Timer {
	t := newTimer(n.resolve(g), n, period, callback)
	n.adopt(t)
	return t
}

func (n *Node) CreateService(g *Group, callback func(req any) any) *Service {
	s := newService(n.resolve(g), n, callback)
	n.adopt(s)
	return s
}

func (n *Node) CreateClient(g *Group, callback func(resp any)) *Client {
	c := newClient(n.resolve(g), n, callback)
	n.adopt(c)
	return c
}

// Add a cleanup function to be called ONCE when the node is disposed.
func (n *Node) OnCleanup(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.cleanups = append(n.cleanups, fn)
}

// Add a function to be called when a callback of this node panics.
// If no error listener is registered, the panic propagates to the goroutine
// spinning the executor once the pass is over.
func (n *Node) OnError(fn func(any)) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.catchers = append(n.catchers, fn)
}

// Dispose drops the node's entities and groups and runs its cleanups.
// Groups still referencing the entities will see them as expired once they
// are collected.
func (n *Node) Dispose() {
	n.mu.Lock()
	cleanups := n.cleanups
	n.cleanups = nil
	n.children = nil
	n.groups = nil
	n.defaultGroup = nil
	n.mu.Unlock()

	for i := 0; i < len(cleanups); i++ {
		cleanups[i]()
	}
}

// catch hands a recovered panic to the error listeners, false if there are none.
func (n *Node) catch(r any) bool {
	n.mu.Lock()
	catchers := slices.Clone(n.catchers)
	n.mu.Unlock()

	if len(catchers) == 0 {
		return false
	}

	for _, catcher := range catchers {
		catcher(r)
	}

	return true
}
