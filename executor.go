package cbgroup

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/AnatoleLucet/cbgroup/internal"
)

// goroutine -> group whose callback it is running
var dispatching = internal.NewTracker[*Group]()

// CurrentGroup returns the group of the callback running on the calling
// goroutine, nil outside of executor callbacks.
func CurrentGroup() *Group {
	g, _ := dispatching.Current()
	return g
}

// Executor dispatches ready callbacks of its groups while honouring each
// group's type: a mutually exclusive group never has two callbacks in flight.
type Executor struct {
	mu sync.Mutex

	// held weakly, the executor never keeps a group or node alive
	groups []Ref[Group]
	nodes  []Ref[Node]

	// node groups released through RemoveGroup, skipped until added back
	removed map[Ref[Group]]struct{}

	threads      int
	pollInterval time.Duration
	log          zerolog.Logger

	scheduler *internal.Scheduler
}

type work struct {
	group *Group
	item  executable
}

// callbackPanic carries a panic no node handled from a worker back to the
// goroutine running the pass.
type callbackPanic struct {
	value any
}

func (p *callbackPanic) Error() string {
	return fmt.Sprintf("callback panicked: %v", p.value)
}

func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		threads:      defaultThreads,
		pollInterval: defaultPollInterval,
		log:          zerolog.Nop(),
		removed:      make(map[Ref[Group]]struct{}),
		scheduler:    internal.NewScheduler(),
	}

	for _, opt := range opts {
		opt(e)
	}

	// CurrentGroup relies on one slot per goroutine
	if !internal.GoroutineLocal {
		e.threads = 1
	}

	return e
}

// AddGroup associates g with the executor. A group belongs to at most one
// executor at a time and stays associated until RemoveGroup, RemoveNode or
// Close releases it, even if the executor itself is dropped.
func (e *Executor) AddGroup(g *Group) error {
	if !g.TryMarkAssociated() {
		return ErrGroupAlreadyAssociated
	}

	e.mu.Lock()
	e.groups = append(e.groups, MakeRef(g))
	delete(e.removed, MakeRef(g))
	e.mu.Unlock()

	e.log.Debug().
		Stringer("type", g.Type()).
		Stringer("real_time_class", g.RealTimeClass()).
		Msg("callback group added")

	return nil
}

// RemoveGroup releases g. A group of an added node is not adopted again
// unless it is passed back to AddGroup.
func (e *Executor) RemoveGroup(g *Group) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.removeGroupLocked(g) {
		return ErrGroupNotAssociated
	}
	e.removed[MakeRef(g)] = struct{}{}

	e.log.Debug().
		Stringer("type", g.Type()).
		Msg("callback group removed")

	return nil
}

func (e *Executor) removeGroupLocked(g *Group) bool {
	i := slices.IndexFunc(e.groups, func(ref Ref[Group]) bool { return ref.Value() == g })
	if i < 0 {
		return false
	}

	e.groups = slices.Delete(e.groups, i, i+1)
	g.Disassociate()

	return true
}

// AddNode makes the executor pick up the node's groups, including groups the
// node creates later, unless another executor already claimed them.
func (e *Executor) AddNode(n *Node) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if slices.ContainsFunc(e.nodes, func(ref Ref[Node]) bool { return ref.Value() == n }) {
		return ErrNodeAlreadyAdded
	}
	e.nodes = append(e.nodes, MakeRef(n))

	e.log.Debug().Str("node", n.Name()).Msg("node added")

	return nil
}

// RemoveNode forgets the node and releases the node groups this executor took.
func (e *Executor) RemoveNode(n *Node) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := slices.IndexFunc(e.nodes, func(ref Ref[Node]) bool { return ref.Value() == n })
	if i < 0 {
		return ErrNodeNotAdded
	}
	e.nodes = slices.Delete(e.nodes, i, i+1)

	for _, g := range n.Groups() {
		e.removeGroupLocked(g)
		delete(e.removed, MakeRef(g))
	}

	e.log.Debug().Str("node", n.Name()).Msg("node removed")

	return nil
}

// Close forgets every node and releases every group so other executors can
// take them. The executor can be reused afterwards.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ref := range e.groups {
		if g, ok := ref.Resolve(); ok {
			g.Disassociate()
		}
	}

	e.groups = nil
	e.nodes = nil
	clear(e.removed)

	e.log.Debug().Msg("executor closed")
}

// Groups returns the live groups associated with the executor.
func (e *Executor) Groups() []*Group {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.collectLocked()
}

// Spinning reports whether a Spin, SpinUntil or SpinOnce call is in progress.
func (e *Executor) Spinning() bool {
	return e.scheduler.Running()
}

// Passes returns how many scheduling passes have completed.
func (e *Executor) Passes() uint64 {
	return e.scheduler.Time()
}

// SpinOnce runs a single scheduling pass and returns the number of callbacks
// it dispatched. It waits for them to return. A callback panic no node
// handled is re-raised here once the pass is over.
func (e *Executor) SpinOnce(ctx context.Context) (int, error) {
	if !e.scheduler.Acquire() {
		return 0, ErrAlreadySpinning
	}
	defer e.scheduler.Release()

	return e.spinOnce(ctx)
}

// Spin runs passes until ctx is done, then returns nil.
func (e *Executor) Spin(ctx context.Context) error {
	return e.SpinUntil(ctx, nil)
}

// SpinUntil runs passes until done reports true (checked after every pass),
// or until ctx is done in which case the context error is returned.
// A nil done spins until ctx is done and returns nil.
func (e *Executor) SpinUntil(ctx context.Context, done func() bool) error {
	if !e.scheduler.Acquire() {
		return ErrAlreadySpinning
	}
	defer e.scheduler.Release()

	idle := time.NewTimer(e.pollInterval)
	defer idle.Stop()

	for {
		n, err := e.spinOnce(ctx)
		if err != nil {
			return stopped(ctx, done)
		}

		if done != nil && done() {
			return nil
		}

		if n > 0 {
			continue
		}

		idle.Reset(e.pollInterval)
		select {
		case <-ctx.Done():
			return stopped(ctx, done)
		case <-idle.C:
		}
	}
}

func stopped(ctx context.Context, done func() bool) error {
	if done == nil {
		return nil
	}

	return ctx.Err()
}

func (e *Executor) spinOnce(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := time.Now()
	ready := internal.NewHeap[work]()

	e.mu.Lock()
	groups := e.collectLocked()
	e.mu.Unlock()

	for _, g := range groups {
		prio := int(g.RealTimeClass())

		for s := range g.Subscriptions() {
			if s.ready(now) {
				ready.Insert(prio, work{g, s})
			}
		}
		for t := range g.Timers() {
			if t.ready(now) {
				ready.Insert(prio, work{g, t})
			}
		}
		for s := range g.Services() {
			if s.ready(now) {
				ready.Insert(prio, work{g, s})
			}
		}
		for c := range g.Clients() {
			if c.ready(now) {
				ready.Insert(prio, work{g, c})
			}
		}
	}

	readyCount := ready.Len()

	var workers errgroup.Group
	workers.SetLimit(e.threads)

	// exclusive groups that were busy this pass
	skipped := make(map[*Group]struct{})
	dispatched := 0

	ready.Drain(func(w work) bool {
		if ctx.Err() != nil {
			return false
		}

		exclusive := w.group.Type() == MutuallyExclusive
		if exclusive {
			if _, busy := skipped[w.group]; busy {
				return true
			}
			if !w.group.TryAcquireExclusive() {
				skipped[w.group] = struct{}{}
				return true
			}
		}

		fn, ok := w.item.take(now)
		if !ok {
			if exclusive {
				w.group.ReleaseExclusive()
			}
			return true
		}

		dispatched++
		workers.Go(func() error {
			return e.execute(w, fn)
		})

		return true
	})

	err := workers.Wait()

	pass := e.scheduler.Tick()
	e.log.Trace().
		Uint64("pass", pass).
		Int("groups", len(groups)).
		Int("ready", readyCount).
		Int("dispatched", dispatched).
		Msg("pass complete")

	var p *callbackPanic
	if errors.As(err, &p) {
		panic(p.value)
	}

	return dispatched, nil
}

// execute runs fn on a worker. A panic goes to the owning node's error
// listeners, or comes back as a *callbackPanic when there are none.
func (e *Executor) execute(w work, fn func()) (err error) {
	if w.group.Type() == MutuallyExclusive {
		defer w.group.ReleaseExclusive()
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}

		node := w.item.owner()
		if node == nil || !node.catch(r) {
			err = &callbackPanic{value: r}
			return
		}

		e.log.Warn().
			Str("node", node.Name()).
			Interface("panic", r).
			Msg("callback panicked")
	}()

	dispatching.Run(w.group, fn)

	return nil
}

// collectLocked adopts unclaimed node groups, drops collected groups and
// nodes, and returns the live groups.
func (e *Executor) collectLocked() []*Group {
	e.nodes = slices.DeleteFunc(e.nodes, Ref[Node].Expired)

	for _, ref := range e.nodes {
		n, ok := ref.Resolve()
		if !ok {
			continue
		}

		for _, g := range n.Groups() {
			if _, skip := e.removed[MakeRef(g)]; skip {
				continue
			}

			if g.TryMarkAssociated() {
				e.groups = append(e.groups, MakeRef(g))

				e.log.Debug().
					Str("node", n.Name()).
					Stringer("type", g.Type()).
					Stringer("real_time_class", g.RealTimeClass()).
					Msg("node callback group added")
			}
		}
	}

	e.groups = slices.DeleteFunc(e.groups, Ref[Group].Expired)
	maps.DeleteFunc(e.removed, func(ref Ref[Group], _ struct{}) bool { return ref.Expired() })

	groups := make([]*Group, 0, len(e.groups))
	for _, ref := range e.groups {
		if g, ok := ref.Resolve(); ok {
			groups = append(groups, g)
		}
	}

	return groups
}
