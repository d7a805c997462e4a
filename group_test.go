package cbgroup

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(any) {}

func TestGroup(t *testing.T) {
	t.Run("construction defaults", func(t *testing.T) {
		g := NewGroup(MutuallyExclusive, RealTimeCritical)

		assert.Equal(t, MutuallyExclusive, g.Type())
		assert.Equal(t, RealTimeCritical, g.RealTimeClass())
		assert.True(t, g.CanBeTakenFrom().Load())
		assert.False(t, g.AssociatedWithExecutor().Load())

		assert.Empty(t, g.SubscriptionRefs())
		assert.Empty(t, g.TimerRefs())
		assert.Empty(t, g.ServiceRefs())
		assert.Empty(t, g.ClientRefs())
		assert.Equal(t, 0, g.Size())
		assert.False(t, g.HasLiveMembers())
	})

	t.Run("opaque real-time class is kept as is", func(t *testing.T) {
		g := NewGroup(Reentrant, RealTimeClass(42))
		assert.Equal(t, RealTimeClass(42), g.RealTimeClass())
	})

	t.Run("each kind goes to its own list", func(t *testing.T) {
		g := NewGroup(Reentrant, RealTimeNone)

		s := NewSubscription(g, noop)
		tm := NewTimer(g, time.Hour, func() {})
		sv := NewService(g, func(req any) any { return req })
		c := NewClient(g, noop)

		assert.Equal(t, []Ref[Subscription]{MakeRef(s)}, g.SubscriptionRefs())
		assert.Equal(t, []Ref[Timer]{MakeRef(tm)}, g.TimerRefs())
		assert.Equal(t, []Ref[Service]{MakeRef(sv)}, g.ServiceRefs())
		assert.Equal(t, []Ref[Client]{MakeRef(c)}, g.ClientRefs())
		assert.Equal(t, 4, g.Size())
		assert.True(t, g.HasLiveMembers())

		assert.Same(t, g, s.Group())
		assert.Same(t, g, tm.Group())
		assert.Same(t, g, sv.Group())
		assert.Same(t, g, c.Group())
	})

	t.Run("nil entities are ignored", func(t *testing.T) {
		g := NewGroup(Reentrant, RealTimeNone)

		g.AddSubscription(nil)
		g.AddTimer(nil)
		g.AddService(nil)
		g.AddClient(nil)

		assert.Equal(t, 0, g.Size())
	})

	t.Run("insertion order is preserved", func(t *testing.T) {
		g := NewGroup(Reentrant, RealTimeNone)

		subs := []*Subscription{}
		for range 5 {
			subs = append(subs, NewSubscription(g, noop))
		}

		got := []*Subscription{}
		for s := range g.Subscriptions() {
			got = append(got, s)
		}

		assert.Equal(t, subs, got)
	})

	t.Run("snapshot does not follow later registrations", func(t *testing.T) {
		g := NewGroup(Reentrant, RealTimeNone)

		keep := []*Subscription{}
		for range 3 {
			keep = append(keep, NewSubscription(g, noop))
		}

		snapshot := g.SubscriptionRefs()

		var wg sync.WaitGroup
		for range 4 {
			wg.Go(func() {
				for range 25 {
					g.AddSubscription(&Subscription{})
				}
			})
		}

		// taken while registrations are still running
		assert.Len(t, snapshot, 3)
		wg.Wait()

		assert.Len(t, snapshot, 3)
		assert.Len(t, g.SubscriptionRefs(), 103)
		runtime.KeepAlive(keep)
	})

	t.Run("expired entries stay listed but do not resolve", func(t *testing.T) {
		g := NewGroup(MutuallyExclusive, RealTimeNone)

		func() {
			NewSubscription(g, noop)
		}()
		runtime.GC()

		refs := g.SubscriptionRefs()
		require.Len(t, refs, 1)

		s, ok := refs[0].Resolve()
		assert.False(t, ok)
		assert.Nil(t, s)
		assert.True(t, refs[0].Expired())

		for range g.Subscriptions() {
			t.Fatal("expired subscription yielded")
		}
		assert.Equal(t, 1, g.Size())
		assert.False(t, g.HasLiveMembers())
	})
}

func TestGroupConcurrentRegistration(t *testing.T) {
	t.Run("no lost updates and per goroutine order", func(t *testing.T) {
		const workers = 8
		const perWorker = 200

		g := NewGroup(Reentrant, RealTimeNone)

		added := make([][]*Subscription, workers)
		timers := make([][]*Timer, workers)
		var wg sync.WaitGroup
		for w := range workers {
			wg.Go(func() {
				for range perWorker {
					added[w] = append(added[w], NewSubscription(g, noop))
					timers[w] = append(timers[w], NewTimer(g, time.Hour, func() {}))
					g.AddService(&Service{})
					g.AddClient(&Client{})
				}
			})
		}
		wg.Wait()

		type origin struct{ worker, seq int }
		origins := make(map[*Subscription]origin)
		for w, subs := range added {
			for i, s := range subs {
				origins[s] = origin{w, i}
			}
		}

		refs := g.SubscriptionRefs()
		require.Len(t, refs, workers*perWorker)
		assert.Len(t, g.TimerRefs(), workers*perWorker)
		assert.Len(t, g.ServiceRefs(), workers*perWorker)
		assert.Len(t, g.ClientRefs(), workers*perWorker)

		seen := make(map[*Subscription]bool)
		last := make([]int, workers)
		for i := range last {
			last[i] = -1
		}

		for _, ref := range refs {
			s, ok := ref.Resolve()
			require.True(t, ok)
			require.False(t, seen[s], "duplicate registration")
			seen[s] = true

			o, ok := origins[s]
			require.True(t, ok, "unknown registration")
			assert.Greater(t, o.seq, last[o.worker], "worker %d out of order", o.worker)
			last[o.worker] = o.seq
		}

		assert.Len(t, seen, workers*perWorker)
		runtime.KeepAlive(timers)
	})

	t.Run("three goroutines add one subscription each", func(t *testing.T) {
		g := NewGroup(MutuallyExclusive, RealTimeNone)

		subs := make([]*Subscription, 3)
		var wg sync.WaitGroup
		for i := range subs {
			wg.Go(func() {
				subs[i] = NewSubscription(g, noop)
			})
		}
		wg.Wait()

		got := []*Subscription{}
		for s := range g.Subscriptions() {
			got = append(got, s)
		}

		assert.Len(t, g.SubscriptionRefs(), 3)
		assert.ElementsMatch(t, subs, got)
	})

	t.Run("classification is stable under concurrent access", func(t *testing.T) {
		g := NewGroup(Reentrant, RealTimeThreadedCritical)

		var bad atomic.Int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Go(func() {
				for range 500 {
					g.AddClient(&Client{})
					if g.Type() != Reentrant || g.RealTimeClass() != RealTimeThreadedCritical {
						bad.Add(1)
					}
				}
			})
		}
		wg.Wait()

		assert.Zero(t, bad.Load())
	})
}

func TestGroupFlags(t *testing.T) {
	t.Run("exclusive token", func(t *testing.T) {
		g := NewGroup(MutuallyExclusive, RealTimeNone)

		assert.True(t, g.TryAcquireExclusive())
		assert.False(t, g.CanBeTakenFrom().Load())
		assert.False(t, g.TryAcquireExclusive())

		g.ReleaseExclusive()
		assert.True(t, g.CanBeTakenFrom().Load())
		assert.True(t, g.TryAcquireExclusive())
	})

	t.Run("association", func(t *testing.T) {
		g := NewGroup(Reentrant, RealTimeNone)

		assert.True(t, g.TryMarkAssociated())
		assert.True(t, g.AssociatedWithExecutor().Load())
		assert.False(t, g.TryMarkAssociated())

		g.Disassociate()
		assert.False(t, g.AssociatedWithExecutor().Load())
	})

	t.Run("raw handles alias the stored flags", func(t *testing.T) {
		g := NewGroup(MutuallyExclusive, RealTimeNone)

		assert.True(t, g.CanBeTakenFrom().CompareAndSwap(true, false))
		assert.False(t, g.TryAcquireExclusive())
		g.CanBeTakenFrom().Store(true)
		assert.True(t, g.TryAcquireExclusive())

		g.AssociatedWithExecutor().Store(true)
		assert.False(t, g.TryMarkAssociated())
	})

	t.Run("two schedulers race for one timer", func(t *testing.T) {
		for range 100 {
			g := NewGroup(MutuallyExclusive, RealTimeNone)
			tm := NewTimer(g, time.Hour, func() {})

			var wins atomic.Int32
			start := make(chan struct{})

			var wg sync.WaitGroup
			for range 2 {
				wg.Go(func() {
					<-start
					if g.CanBeTakenFrom().CompareAndSwap(true, false) {
						wins.Add(1)
					}
				})
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int32(1), wins.Load())
			runtime.KeepAlive(tm)
		}
	})

	t.Run("no two holders of the token at once", func(t *testing.T) {
		g := NewGroup(MutuallyExclusive, RealTimeNone)

		var holders, overlaps, acquired atomic.Int32
		var wg sync.WaitGroup
		for range 16 {
			wg.Go(func() {
				for range 2000 {
					if !g.TryAcquireExclusive() {
						continue
					}

					acquired.Add(1)
					if holders.Add(1) != 1 {
						overlaps.Add(1)
					}
					holders.Add(-1)

					g.ReleaseExclusive()
				}
			})
		}
		wg.Wait()

		assert.Zero(t, overlaps.Load())
		assert.Positive(t, acquired.Load())
		assert.True(t, g.CanBeTakenFrom().Load())
	})

	t.Run("association claimed once among many", func(t *testing.T) {
		g := NewGroup(Reentrant, RealTimeNone)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 32 {
			wg.Go(func() {
				if g.TryMarkAssociated() {
					wins.Add(1)
				}
			})
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
	})
}
