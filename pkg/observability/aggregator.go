package observability

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/appflow/pkg/flow"
)

// Snapshot is the state of one machine after a change.
type Snapshot struct {
	Machine string       `json:"machine"`
	Node    flow.NodeRef `json:"node"`
	State   any          `json:"state"`
	Time    time.Time    `json:"time"`
}

// Aggregator combines the change streams of several machines into a single
// view.
type Aggregator struct {
	mu       sync.Mutex
	machines []*flow.Machine
	buffer   int
}

// NewAggregator creates a new aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{buffer: 64}
}

// Add registers a machine. Watches already running do not see it.
func (a *Aggregator) Add(m *flow.Machine) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.machines = append(a.machines, m)
}

// Watch emits the current state of every machine, then one snapshot per
// change until ctx ends. Snapshots are dropped while the channel is full so
// slow readers never stall a dispatch.
func (a *Aggregator) Watch(ctx context.Context) <-chan Snapshot {
	a.mu.Lock()
	machines := append([]*flow.Machine(nil), a.machines...)
	a.mu.Unlock()

	out := make(chan Snapshot, a.buffer+len(machines))
	var (
		mu     sync.Mutex
		closed bool
	)
	send := func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case out <- s:
		default:
		}
	}

	unsubscribe := make([]func(), 0, len(machines))
	for _, m := range machines {
		send(Snapshot{Machine: m.Name(), Node: m.Current(), State: m.GetState(), Time: time.Now()})
		unsubscribe = append(unsubscribe, m.Subscribe(func(c flow.Change) {
			send(Snapshot{Machine: m.Name(), Node: c.Node, State: c.State, Time: time.Now()})
		}))
	}

	go func() {
		<-ctx.Done()
		for _, fn := range unsubscribe {
			fn()
		}
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out
}
