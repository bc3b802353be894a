package inspector

import (
	"time"
)

// Observer is notified of tree changes. Callbacks run synchronously on the
// goroutine that made the change, before the triggering operation returns,
// and must not call back into the Tree.
type Observer interface {
	NodesCreated(parent *Node, children []*Node)
	NodeStateChanged(node *Node, from, to State)
	NodeTornDown(node *Node)
}

// BaseObserver implements Observer with no-ops for embedding
type BaseObserver struct{}

func (BaseObserver) NodesCreated(*Node, []*Node)         {}
func (BaseObserver) NodeStateChanged(*Node, State, State) {}
func (BaseObserver) NodeTornDown(*Node)                   {}

// Expansion outcomes reported to Metrics
const (
	OutcomeCached   = "cached"
	OutcomeFetched  = "fetched"
	OutcomeBucketed = "bucketed"
	OutcomeCycle    = "cycle"
	OutcomeFailed   = "failed"
	OutcomeDetached = "detached"
	OutcomeStale    = "stale"
)

// Metrics receives inspector measurements
type Metrics interface {
	ObserveExpand(outcome string)
	ObserveFetch(err error, duration time.Duration)
	ObserveGetter(err error)
	ObserveSerialize(err error, duration time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) ObserveExpand(string)                  {}
func (nopMetrics) ObserveFetch(error, time.Duration)     {}
func (nopMetrics) ObserveGetter(error)                   {}
func (nopMetrics) ObserveSerialize(error, time.Duration) {}
