package discussion

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Transition failure messages.
const (
	msgNotCompleted      = "Can only summarize completed conversations"
	msgNotSummarizing    = "Not currently summarizing"
	msgNotSummarized     = "Can only create video scripts from completed summaries"
	msgNotCreatingScript = "Not currently creating video script"
)

type cell struct{ s State }

type observer struct {
	id int
	fn func(State)
}

// Machine holds the single authoritative conversation state.
//
// Transitions are serialized and each one commits exactly one new value. State never
// blocks. Observers run synchronously, in commit order, after every commit; they must
// not call back into the Machine's transition methods.
type Machine struct {
	mu        sync.Mutex
	current   atomic.Pointer[cell]
	observers []observer
	nextID    int
}

func NewMachine() *Machine {
	m := &Machine{}
	m.current.Store(&cell{s: &NotStarted{}})
	return m
}

// State returns the latest committed value.
func (m *Machine) State() State {
	return m.current.Load().s
}

// Observe registers fn for every future transition and returns an unsubscribe func.
func (m *Machine) Observe(fn func(State)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addObserverLocked(fn)
}

func (m *Machine) addObserverLocked(fn func(State)) func() {
	id := m.nextID
	m.nextID++
	m.observers = append(m.observers, observer{id: id, fn: fn})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, o := range m.observers {
			if o.id == id {
				m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
				return
			}
		}
	}
}

// Subscribe returns a channel that receives the current state followed by every later
// transition, in order. Delivery is queued so a slow reader never stalls a writer.
// The returned func stops delivery and closes the channel.
func (m *Machine) Subscribe() (<-chan State, func()) {
	q := newStateQueue()

	m.mu.Lock()
	q.push(m.State())
	unobserve := m.addObserverLocked(q.push)
	m.mu.Unlock()

	out := make(chan State)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			s, ok := q.pop()
			if !ok {
				select {
				case <-q.ready:
					continue
				case <-done:
					return
				}
			}
			select {
			case out <- s:
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			unobserve()
			close(done)
		})
	}
}

// update applies fn to the current state. Returning the same value is a no-op:
// nothing is committed and observers are not called.
func (m *Machine) update(fn func(State) State) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.State()
	next := fn(cur)
	if next == cur {
		return cur
	}
	m.commit(next)
	return next
}

// commit stores next and notifies observers. Callers hold mu.
func (m *Machine) commit(next State) {
	m.current.Store(&cell{s: next})
	for _, o := range m.observers {
		o.fn(next)
	}
}

// set commits next unconditionally, even when it is indistinguishable from the
// current value (two *NotStarted share an address).
func (m *Machine) set(next State) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commit(next)
	return next
}

// StartConversation begins round 1 with the first participant, whatever the prior state.
func (m *Machine) StartConversation(cfg ConversationConfig) State {
	return m.set(&InProgress{
		Config:                  cfg,
		Rounds:                  []Round{{Number: 1}},
		CurrentRound:            1,
		CurrentPhilosopherIndex: 0,
	})
}

// AddContribution records c and advances the turn. It is a no-op unless a
// conversation is in progress.
func (m *Machine) AddContribution(c Contribution) State {
	return m.update(func(cur State) State {
		return addContribution(cur, c)
	})
}

// advance adds c only if expected is still the current value, so a turn that
// finishes after a reset or restart is discarded. The bool reports whether c was applied.
func (m *Machine) advance(expected State, c Contribution) (State, bool) {
	applied := false
	s := m.update(func(cur State) State {
		if cur != expected {
			return cur
		}
		applied = true
		return addContribution(cur, c)
	})
	return s, applied
}

// failIf moves to the error variant only if expected is still the current value.
func (m *Machine) failIf(expected State, message string, cause error) (State, bool) {
	applied := false
	s := m.update(func(cur State) State {
		if cur != expected {
			return cur
		}
		applied = true
		return &Failed{Message: message, Cause: cause}
	})
	return s, applied
}

func addContribution(cur State, c Contribution) State {
	ip, ok := cur.(*InProgress)
	if !ok {
		return cur
	}

	rounds := cloneRounds(ip.Rounds)
	idx := -1
	for i := range rounds {
		if rounds[i].Number == c.RoundNumber {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &Failed{Message: fmt.Sprintf("Contribution for round %d does not match any round in progress", c.RoundNumber)}
	}
	rounds[idx].Contributions = append(rounds[idx].Contributions, c)

	nextIndex := ip.CurrentPhilosopherIndex + 1
	nextRound := ip.CurrentRound
	if nextIndex >= len(ip.Config.Participants) {
		rounds[idx].Complete = true
		nextIndex = 0
		nextRound++
	}

	if nextRound > ip.Config.MaxRounds {
		return &Completed{
			Config:             ip.Config,
			Rounds:             rounds,
			FinalContributions: sortByTimestamp(flatten(rounds)),
		}
	}
	if nextRound != ip.CurrentRound {
		rounds = append(rounds, Round{Number: nextRound})
	}
	return &InProgress{
		Config:                  ip.Config,
		Rounds:                  rounds,
		CurrentRound:            nextRound,
		CurrentPhilosopherIndex: nextIndex,
	}
}

// SetError moves to the error variant unconditionally.
func (m *Machine) SetError(message string, cause error) State {
	return m.set(&Failed{Message: message, Cause: cause})
}

func (m *Machine) StartSummarization(cfg SummarizationConfig) State {
	return m.update(func(cur State) State {
		c, ok := cur.(*Completed)
		if !ok {
			return &Failed{Message: msgNotCompleted}
		}
		return &Summarizing{Original: c, Config: cfg}
	})
}

func (m *Machine) CompleteSummarization(summary *ConversationSummary) State {
	return m.update(func(cur State) State {
		s, ok := cur.(*Summarizing)
		if !ok {
			return &Failed{Message: msgNotSummarizing}
		}
		return &SummarizationComplete{Original: s.Original, Summary: summary}
	})
}

func (m *Machine) StartVideoScriptCreation(cfg DirectorConfig) State {
	return m.update(func(cur State) State {
		s, ok := cur.(*SummarizationComplete)
		if !ok {
			return &Failed{Message: msgNotSummarized}
		}
		return &CreatingVideoScript{Summary: s.Summary, Config: cfg}
	})
}

func (m *Machine) CompleteVideoScript(script *VideoScript) State {
	return m.update(func(cur State) State {
		s, ok := cur.(*CreatingVideoScript)
		if !ok {
			return &Failed{Message: msgNotCreatingScript}
		}
		return &VideoScriptComplete{Summary: s.Summary, Script: script}
	})
}

// Reset returns to NotStarted unconditionally. An in-flight turn loop stops at its
// next state check.
func (m *Machine) Reset() State {
	return m.set(&NotStarted{})
}

// Restore installs a completed conversation loaded from storage.
func (m *Machine) Restore(c *Completed) State {
	return m.set(c)
}

// RestoreSummary installs a finished summary loaded from storage. original may be nil.
func (m *Machine) RestoreSummary(original *Completed, summary *ConversationSummary) State {
	return m.set(&SummarizationComplete{Original: original, Summary: summary})
}

// stateQueue is an unbounded FIFO used by Subscribe.
type stateQueue struct {
	mu    sync.Mutex
	items []State
	ready chan struct{}
}

func newStateQueue() *stateQueue {
	return &stateQueue{ready: make(chan struct{}, 1)}
}

func (q *stateQueue) push(s State) {
	q.mu.Lock()
	q.items = append(q.items, s)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *stateQueue) pop() (State, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	s := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return s, true
}
