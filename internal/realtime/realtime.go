// Package realtime broadcasts conversation state changes.
package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/apresai/symposium/internal/discussion"
)

// LastContribution is the newest turn carried by a StateEvent.
type LastContribution struct {
	Philosopher string `json:"philosopher"`
	Round       int    `json:"round"`
	Response    string `json:"response"`
	WordCount   int    `json:"wordCount"`
}

// StateEvent is the JSON view of one committed state.
type StateEvent struct {
	Kind             string            `json:"kind"`
	ConversationID   string            `json:"conversationId"`
	Topic            string            `json:"topic,omitempty"`
	Round            int               `json:"round,omitempty"`
	MaxRounds        int               `json:"maxRounds,omitempty"`
	Speaker          string            `json:"speaker,omitempty"`
	Contributions    int               `json:"contributions"`
	LastContribution *LastContribution `json:"lastContribution,omitempty"`
	Error            string            `json:"error,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}

func NewStateEvent(conversationID string, s discussion.State, now time.Time) StateEvent {
	ev := StateEvent{Kind: s.Kind().String(), ConversationID: conversationID, Timestamp: now}

	var contribs []discussion.Contribution
	switch st := s.(type) {
	case *discussion.InProgress:
		ev.Topic = st.Config.Topic
		ev.Round = st.CurrentRound
		ev.MaxRounds = st.Config.MaxRounds
		if p, ok := st.CurrentPhilosopher(); ok {
			ev.Speaker = p.Name
		}
		contribs = st.Contributions()
	case *discussion.Completed:
		ev.Topic = st.Config.Topic
		ev.MaxRounds = st.Config.MaxRounds
		contribs = st.FinalContributions
	case *discussion.Summarizing:
		if st.Original != nil {
			ev.Topic = st.Original.Config.Topic
			ev.Contributions = len(st.Original.FinalContributions)
		}
	case *discussion.SummarizationComplete:
		if st.Summary != nil {
			ev.Topic = st.Summary.CondensedTopic
		}
	case *discussion.CreatingVideoScript:
		if st.Summary != nil {
			ev.Topic = st.Summary.CondensedTopic
		}
	case *discussion.VideoScriptComplete:
		if st.Script != nil {
			ev.Topic = st.Script.Title
		}
	case *discussion.Failed:
		ev.Error = st.Message
		if st.Cause != nil {
			ev.Error += ": " + st.Cause.Error()
		}
	}

	if n := len(contribs); n > 0 {
		ev.Contributions = n
		last := contribs[n-1]
		ev.LastContribution = &LastContribution{
			Philosopher: last.Philosopher.Name,
			Round:       last.RoundNumber,
			Response:    last.Response,
			WordCount:   last.WordCount,
		}
	}
	return ev
}

// Publisher delivers state events to subscribers outside the process.
type Publisher interface {
	Publish(ctx context.Context, ev StateEvent) error
	Close() error
}

// eventBuffer bounds the events queued between a Machine and a slow Publisher.
const eventBuffer = 256

// Attach publishes every later transition of m for conversationID. Events are
// queued so publishing never holds up a transition; a full queue drops the event.
// The returned func stops observing and waits for queued events to be sent.
func Attach(ctx context.Context, m *discussion.Machine, conversationID string, pub Publisher, logger *slog.Logger) func() {
	if logger == nil {
		logger = slog.Default()
	}
	events := make(chan StateEvent, eventBuffer)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range events {
			if err := pub.Publish(ctx, ev); err != nil {
				logger.WarnContext(ctx, "State publish failed", "conversation_id", conversationID, "kind", ev.Kind, "error", err)
			}
		}
	}()

	unobserve := m.Observe(func(s discussion.State) {
		select {
		case events <- NewStateEvent(conversationID, s, time.Now()):
		default:
			logger.Warn("State event dropped, publisher is behind", "conversation_id", conversationID)
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			unobserve()
			close(events)
			<-done
		})
	}
}
