package node

import (
	"sync"
	"sync/atomic"
)

// State captures the run state of a Node: Idle, Running or Shutdown. It is
// unrelated to the ActiveState of the local indexnode.
type State uint32

const (
	// Idle is the state of a node that was created but not run.
	Idle State = iota
	// Running nodes gossip and run the maintenance ticks.
	Running
	// Shutdown is final.
	Shutdown
)

var stateNames = [...]string{
	Idle:     "Idle",
	Running:  "Running",
	Shutdown: "Shutdown",
}

// String ...
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// routines tracks the run state and the goroutines a Node waits for on
// shutdown.
type routines struct {
	state uint32
	wg    sync.WaitGroup
}

func (r *routines) getState() State {
	return State(atomic.LoadUint32(&r.state))
}

func (r *routines) setState(s State) {
	atomic.StoreUint32(&r.state, uint32(s))
}

// swapState moves from old to s and reports whether it did.
func (r *routines) swapState(old, s State) bool {
	return atomic.CompareAndSwapUint32(&r.state, uint32(old), uint32(s))
}

func (r *routines) goFunc(f func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		f()
	}()
}

func (r *routines) waitRoutines() {
	r.wg.Wait()
}
