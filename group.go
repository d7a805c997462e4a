// Package cbgroup groups callback entities under a shared execution policy.
//
// A Group only records membership (through weak references) and carries the
// flags an Executor needs to honour the group's concurrency contract. The
// entities, their owning Node and the Executor are built around it.
package cbgroup

import (
	"iter"
	"slices"
	"sync"
	"sync/atomic"
)

type Group struct {
	typ           GroupType
	realTimeClass RealTimeClass

	// scheduler coordination, never guarded by mu
	canBeTakenFrom         atomic.Bool
	associatedWithExecutor atomic.Bool

	// guards the four member lists
	mu sync.Mutex

	subscriptions []Ref[Subscription]
	timers        []Ref[Timer]
	services      []Ref[Service]
	clients       []Ref[Client]
}

// NewGroup creates an empty group. The type and real-time class are fixed for
// the lifetime of the group.
func NewGroup(typ GroupType, class RealTimeClass) *Group {
	g := &Group{
		typ:           typ,
		realTimeClass: class,
	}
	g.canBeTakenFrom.Store(true)

	return g
}

func (g *Group) Type() GroupType { return g.typ }

func (g *Group) RealTimeClass() RealTimeClass { return g.realTimeClass }

// CanBeTakenFrom exposes the exclusivity token. Executors flip it to false
// while a callback of a mutually exclusive group runs.
func (g *Group) CanBeTakenFrom() *atomic.Bool { return &g.canBeTakenFrom }

// AssociatedWithExecutor exposes the flag guarding against a group being
// added to more than one executor.
func (g *Group) AssociatedWithExecutor() *atomic.Bool { return &g.associatedWithExecutor }

// TryAcquireExclusive takes the exclusivity token, false if it is already held.
func (g *Group) TryAcquireExclusive() bool {
	return g.canBeTakenFrom.CompareAndSwap(true, false)
}

func (g *Group) ReleaseExclusive() {
	g.canBeTakenFrom.Store(true)
}

// TryMarkAssociated claims the group for an executor, false if another one already did.
func (g *Group) TryMarkAssociated() bool {
	return g.associatedWithExecutor.CompareAndSwap(false, true)
}

func (g *Group) Disassociate() {
	g.associatedWithExecutor.Store(false)
}

func (g *Group) AddSubscription(s *Subscription) {
	if s == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscriptions = append(g.subscriptions, MakeRef(s))
}

func (g *Group) AddTimer(t *Timer) {
	if t == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.timers = append(g.timers, MakeRef(t))
}

func (g *Group) AddService(s *Service) {
	if s == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.services = append(g.services, MakeRef(s))
}

func (g *Group) AddClient(c *Client) {
	if c == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.clients = append(g.clients, MakeRef(c))
}

// SubscriptionRefs returns a copy of the subscription list as it is now.
// Entries may have expired; callers skip those.
func (g *Group) SubscriptionRefs() []Ref[Subscription] {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.subscriptions)
}

func (g *Group) TimerRefs() []Ref[Timer] {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.timers)
}

func (g *Group) ServiceRefs() []Ref[Service] {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.services)
}

func (g *Group) ClientRefs() []Ref[Client] {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.clients)
}

// Subscriptions iterates the live subscriptions of a snapshot.
func (g *Group) Subscriptions() iter.Seq[*Subscription] { return live(g.SubscriptionRefs()) }

func (g *Group) Timers() iter.Seq[*Timer] { return live(g.TimerRefs()) }

func (g *Group) Services() iter.Seq[*Service] { return live(g.ServiceRefs()) }

func (g *Group) Clients() iter.Seq[*Client] { return live(g.ClientRefs()) }

// Size counts every registration, expired ones included.
func (g *Group) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subscriptions) + len(g.timers) + len(g.services) + len(g.clients)
}

func (g *Group) HasLiveMembers() bool {
	for range g.Subscriptions() {
		return true
	}
	for range g.Timers() {
		return true
	}
	for range g.Services() {
		return true
	}
	for range g.Clients() {
		return true
	}
	return false
}

func live[T any](refs []Ref[T]) iter.Seq[*T] {
	return func(yield func(*T) bool) {
		for _, ref := range refs {
			p, ok := ref.Resolve()
			if !ok {
				continue
			}

			if !yield(p) {
				return
			}
		}
	}
}
