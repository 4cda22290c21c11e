package discussion

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contribution(t *testing.T, cfg ConversationConfig, idx, round int, at time.Time) Contribution {
	t.Helper()
	return NewContribution(cfg.Participants[idx], "some words here", round, at)
}

func TestMachineStartsNotStarted(t *testing.T) {
	m := NewMachine()
	assert.Equal(t, KindNotStarted, m.State().Kind())
}

func TestStartConversation(t *testing.T) {
	m := NewMachine()
	m.SetError("old failure", nil)

	cfg := config(t, 2, "socrates", "kant")
	ip, ok := m.StartConversation(cfg).(*InProgress)
	require.True(t, ok)
	assert.Equal(t, 1, ip.CurrentRound)
	assert.Equal(t, 0, ip.CurrentPhilosopherIndex)
	require.Len(t, ip.Rounds, 1)
	assert.Equal(t, 1, ip.Rounds[0].Number)
	assert.Empty(t, ip.Rounds[0].Contributions)

	p, ok := ip.CurrentPhilosopher()
	require.True(t, ok)
	assert.Equal(t, "socrates", p.ID)
	assert.False(t, ip.IsComplete())
}

func TestAddContributionNoOpOutsideInProgress(t *testing.T) {
	cfg := config(t, 1, "socrates")
	c := contribution(t, cfg, 0, 1, time.Now())

	m := NewMachine()
	before := m.State()
	assert.Same(t, before, m.AddContribution(c))
	assert.Same(t, before, m.State())

	m.StartConversation(cfg)
	done := m.AddContribution(c)
	require.Equal(t, KindCompleted, done.Kind())
	assert.Same(t, done, m.AddContribution(c))
}

func TestAddContributionAdvancesTurns(t *testing.T) {
	cfg := config(t, 2, "socrates", "kant")
	clock := tickingClock()
	m := NewMachine()
	m.StartConversation(cfg)

	s := m.AddContribution(contribution(t, cfg, 0, 1, clock()))
	ip := s.(*InProgress)
	assert.Equal(t, 1, ip.CurrentRound)
	assert.Equal(t, 1, ip.CurrentPhilosopherIndex)

	s = m.AddContribution(contribution(t, cfg, 1, 1, clock()))
	ip = s.(*InProgress)
	assert.Equal(t, 2, ip.CurrentRound)
	assert.Equal(t, 0, ip.CurrentPhilosopherIndex)
	require.Len(t, ip.Rounds, 2)
	assert.True(t, ip.Rounds[0].Complete)
	assert.Len(t, ip.Rounds[0].Contributions, 2)
	assert.Empty(t, ip.Rounds[1].Contributions)
}

func TestRoundAdvanceBoundary(t *testing.T) {
	cfg := config(t, 1, "socrates", "kant")
	clock := tickingClock()
	m := NewMachine()
	m.StartConversation(cfg)

	m.AddContribution(contribution(t, cfg, 0, 1, clock()))
	s := m.AddContribution(contribution(t, cfg, 1, 1, clock()))

	c, ok := s.(*Completed)
	require.True(t, ok, "expected Completed, got %s", s.Kind())
	assert.Len(t, c.Rounds, 1)
	assert.Len(t, c.FinalContributions, 2)
}

func TestCompletedSortsByTimestampStable(t *testing.T) {
	cfg := config(t, 1, "socrates", "kant", "sartre")
	m := NewMachine()
	m.StartConversation(cfg)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.AddContribution(contribution(t, cfg, 0, 1, base.Add(2*time.Second)))
	m.AddContribution(contribution(t, cfg, 1, 1, base.Add(time.Second)))
	s := m.AddContribution(contribution(t, cfg, 2, 1, base.Add(time.Second)))

	c := s.(*Completed)
	var ids []string
	for _, fc := range c.FinalContributions {
		ids = append(ids, fc.Philosopher.ID)
	}
	assert.Equal(t, []string{"kant", "sartre", "socrates"}, ids)
}

func TestPreviousStatesAreNotMutated(t *testing.T) {
	cfg := config(t, 2, "socrates", "kant")
	clock := tickingClock()
	m := NewMachine()
	first := m.StartConversation(cfg).(*InProgress)

	second := m.AddContribution(contribution(t, cfg, 0, 1, clock())).(*InProgress)
	m.AddContribution(contribution(t, cfg, 1, 1, clock()))

	assert.Empty(t, first.Rounds[0].Contributions)
	assert.Len(t, second.Rounds[0].Contributions, 1)
	assert.Len(t, second.Rounds, 1)
}

func TestAddContributionUnknownRoundFails(t *testing.T) {
	cfg := config(t, 2, "socrates")
	m := NewMachine()
	m.StartConversation(cfg)

	s := m.AddContribution(contribution(t, cfg, 0, 5, time.Now()))
	f, ok := s.(*Failed)
	require.True(t, ok)
	assert.Contains(t, f.Message, "round 5")
}

func TestInvalidTransitionsFail(t *testing.T) {
	tests := []struct {
		name string
		op   func(m *Machine) State
		msg  string
	}{
		{"summarize from not started", func(m *Machine) State { return m.StartSummarization(DefaultSummarizationConfig()) }, "Can only summarize completed conversations"},
		{"complete summary when idle", func(m *Machine) State { return m.CompleteSummarization(&ConversationSummary{}) }, "Not currently summarizing"},
		{"direct from not started", func(m *Machine) State { return m.StartVideoScriptCreation(DefaultDirectorConfig()) }, "Can only create video scripts from completed summaries"},
		{"complete script when idle", func(m *Machine) State { return m.CompleteVideoScript(&VideoScript{}) }, "Not currently creating video script"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine()
			s := tt.op(m)
			f, ok := s.(*Failed)
			require.True(t, ok)
			assert.Equal(t, tt.msg, f.Message)
			assert.Same(t, s, m.State())
		})
	}
}

func TestFullLifecycle(t *testing.T) {
	cfg := config(t, 1, "socrates")
	m := NewMachine()
	m.StartConversation(cfg)
	completed := m.AddContribution(contribution(t, cfg, 0, 1, time.Now())).(*Completed)

	s := m.StartSummarization(DefaultSummarizationConfig())
	require.Equal(t, KindSummarizing, s.Kind())
	assert.Same(t, completed, s.(*Summarizing).Original)

	summary := &ConversationSummary{CondensedTopic: "Justice"}
	s = m.CompleteSummarization(summary)
	require.Equal(t, KindSummarizationComplete, s.Kind())

	s = m.StartVideoScriptCreation(DefaultDirectorConfig())
	require.Equal(t, KindCreatingVideoScript, s.Kind())
	assert.Same(t, summary, s.(*CreatingVideoScript).Summary)

	script := &VideoScript{Title: "Justice"}
	s = m.CompleteVideoScript(script)
	require.Equal(t, KindVideoScriptComplete, s.Kind())
	assert.Same(t, script, s.(*VideoScriptComplete).Script)
}

func TestResetFromEveryState(t *testing.T) {
	cfg := config(t, 1, "socrates")
	setups := map[string]func(m *Machine){
		"not started": func(m *Machine) {},
		"in progress": func(m *Machine) { m.StartConversation(cfg) },
		"error":       func(m *Machine) { m.SetError("boom", errors.New("x")) },
		"completed": func(m *Machine) {
			m.StartConversation(cfg)
			m.AddContribution(contribution(t, cfg, 0, 1, time.Now()))
		},
		"summarizing": func(m *Machine) {
			m.Restore(NewCompleted(cfg, nil))
			m.StartSummarization(DefaultSummarizationConfig())
		},
		"summarized": func(m *Machine) { m.RestoreSummary(nil, &ConversationSummary{}) },
	}
	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			m := NewMachine()
			setup(m)
			assert.Equal(t, KindNotStarted, m.Reset().Kind())
			assert.Equal(t, KindNotStarted, m.State().Kind())
		})
	}
}

func TestResetFromNotStartedNotifies(t *testing.T) {
	m := NewMachine()
	var seen []Kind
	unobserve := m.Observe(func(s State) { seen = append(seen, s.Kind()) })
	defer unobserve()

	m.Reset()
	m.Reset()
	assert.Equal(t, []Kind{KindNotStarted, KindNotStarted}, seen)
}

func TestSetErrorKeepsCause(t *testing.T) {
	cause := errors.New("network down")
	m := NewMachine()
	f := m.SetError("Failed", cause).(*Failed)
	assert.Equal(t, "Failed", f.Message)
	assert.Same(t, cause, f.Cause)
}

func TestObserveSeesCommitOrder(t *testing.T) {
	cfg := config(t, 1, "socrates", "kant")
	clock := tickingClock()
	m := NewMachine()

	var kinds []Kind
	stop := m.Observe(func(s State) { kinds = append(kinds, s.Kind()) })

	m.StartConversation(cfg)
	m.AddContribution(contribution(t, cfg, 0, 1, clock()))
	m.AddContribution(contribution(t, cfg, 1, 1, clock()))
	m.AddContribution(contribution(t, cfg, 1, 1, clock())) // no-op: not observed
	m.StartSummarization(DefaultSummarizationConfig())
	stop()
	m.Reset()

	assert.Equal(t, []Kind{KindInProgress, KindInProgress, KindCompleted, KindSummarizing}, kinds)
}

func TestSubscribeDeliversEveryState(t *testing.T) {
	cfg := config(t, 2, "socrates", "kant")
	clock := tickingClock()
	m := NewMachine()

	ch, stop := m.Subscribe()
	defer stop()

	m.StartConversation(cfg)
	for i := 0; i < 4; i++ {
		m.AddContribution(contribution(t, cfg, i%2, i/2+1, clock()))
	}

	var kinds []Kind
	for s := range ch {
		kinds = append(kinds, s.Kind())
		if s.Kind() == KindCompleted {
			break
		}
	}
	assert.Equal(t, []Kind{
		KindNotStarted,
		KindInProgress, KindInProgress, KindInProgress, KindInProgress,
		KindCompleted,
	}, kinds)
}

func TestSubscribeStopClosesChannel(t *testing.T) {
	m := NewMachine()
	ch, stop := m.Subscribe()
	<-ch
	stop()
	stop()

	m.SetError("after stop", nil)
	_, open := <-ch
	assert.False(t, open)
}
