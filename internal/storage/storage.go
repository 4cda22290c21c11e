// Package storage persists conversations, summaries and video scripts.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/apresai/symposium/internal/discussion"
	"github.com/apresai/symposium/internal/philosopher"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Status is the lifecycle of a stored conversation.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// ParseStatus accepts the stored names; empty means any.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case "", StatusInProgress, StatusCompleted, StatusError:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q (want in_progress, completed or error)", s)
}

type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ContributionRecord struct {
	PhilosopherID   string    `json:"philosopherId"`
	PhilosopherName string    `json:"philosopherName"`
	Response        string    `json:"response"`
	RoundNumber     int       `json:"roundNumber"`
	WordCount       int       `json:"wordCount"`
	Timestamp       time.Time `json:"timestamp"`
}

// Conversation is the stored snapshot of a discussion.
type Conversation struct {
	ID                  string               `json:"id"`
	Topic               string               `json:"topic"`
	Participants        []Participant        `json:"participants"`
	MaxRounds           int                  `json:"maxRounds"`
	MaxWordsPerResponse int                  `json:"maxWordsPerResponse"`
	Model               string               `json:"model,omitempty"`
	Status              Status               `json:"status"`
	CurrentRound        int                  `json:"currentRound,omitempty"`
	ErrorMessage        string               `json:"errorMessage,omitempty"`
	Contributions       []ContributionRecord `json:"contributions"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           time.Time            `json:"updatedAt"`
	CompletedAt         *time.Time           `json:"completedAt,omitempty"`
}

// NewConversation starts a record from an InProgress or Completed state.
func NewConversation(id string, s discussion.State, now time.Time) (*Conversation, error) {
	switch s.(type) {
	case *discussion.InProgress, *discussion.Completed:
	default:
		return nil, fmt.Errorf("new conversation record: cannot snapshot %s state", s.Kind())
	}
	c := &Conversation{ID: id, CreatedAt: now}
	if err := c.Snapshot(s, now); err != nil {
		return nil, err
	}
	return c, nil
}

// Snapshot copies s into the record. A Failed state keeps the recorded config and
// contributions and only sets the status and message. Other kinds are rejected.
func (c *Conversation) Snapshot(s discussion.State, now time.Time) error {
	switch st := s.(type) {
	case *discussion.InProgress:
		c.setConfig(st.Config)
		c.Status = StatusInProgress
		c.CurrentRound = st.CurrentRound
		c.Contributions = records(st.Contributions())
	case *discussion.Completed:
		c.setConfig(st.Config)
		c.Status = StatusCompleted
		c.CurrentRound = 0
		c.Contributions = records(flattenRounds(st.Rounds))
		c.CompletedAt = &now
	case *discussion.Failed:
		c.Status = StatusError
		c.ErrorMessage = st.Message
		if st.Cause != nil {
			c.ErrorMessage += ": " + st.Cause.Error()
		}
	default:
		return fmt.Errorf("snapshot conversation %s: unsupported state %s", c.ID, s.Kind())
	}
	c.UpdatedAt = now
	return nil
}

func (c *Conversation) setConfig(cfg discussion.ConversationConfig) {
	c.Topic = cfg.Topic
	c.MaxRounds = cfg.MaxRounds
	c.MaxWordsPerResponse = cfg.MaxWordsPerResponse
	c.Participants = make([]Participant, len(cfg.Participants))
	for i, p := range cfg.Participants {
		c.Participants[i] = Participant{ID: p.ID, Name: p.Name}
	}
}

// Completed rebuilds the Completed state. Philosophers are resolved by id, then by name.
func (c *Conversation) Completed(catalog *philosopher.Catalog) (*discussion.Completed, error) {
	if c.Status != StatusCompleted {
		return nil, fmt.Errorf("conversation %s is %s, not completed", c.ID, c.Status)
	}

	resolve := func(id, name string) (philosopher.Philosopher, error) {
		if p, err := catalog.Get(id); err == nil {
			return p, nil
		}
		return catalog.FindByName(name)
	}

	participants := make([]philosopher.Philosopher, 0, len(c.Participants))
	for _, p := range c.Participants {
		ph, err := resolve(p.ID, p.Name)
		if err != nil {
			return nil, fmt.Errorf("conversation %s: %w", c.ID, err)
		}
		participants = append(participants, ph)
	}
	cfg, err := discussion.NewConversationConfig(c.Topic, participants, c.MaxRounds, c.MaxWordsPerResponse)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", c.ID, err)
	}

	byRound := map[int][]discussion.Contribution{}
	for _, r := range c.Contributions {
		ph, err := resolve(r.PhilosopherID, r.PhilosopherName)
		if err != nil {
			return nil, fmt.Errorf("conversation %s: %w", c.ID, err)
		}
		byRound[r.RoundNumber] = append(byRound[r.RoundNumber], discussion.Contribution{
			Philosopher: ph,
			Response:    r.Response,
			Timestamp:   r.Timestamp,
			RoundNumber: r.RoundNumber,
			WordCount:   r.WordCount,
		})
	}

	numbers := make([]int, 0, len(byRound))
	for n := range byRound {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	rounds := make([]discussion.Round, 0, len(numbers))
	for _, n := range numbers {
		contribs := byRound[n]
		sort.SliceStable(contribs, func(i, j int) bool {
			return contribs[i].Timestamp.Before(contribs[j].Timestamp)
		})
		rounds = append(rounds, discussion.Round{Number: n, Contributions: contribs, Complete: true})
	}
	return discussion.NewCompleted(cfg, rounds), nil
}

func records(cs []discussion.Contribution) []ContributionRecord {
	out := make([]ContributionRecord, len(cs))
	for i, c := range cs {
		out[i] = ContributionRecord{
			PhilosopherID:   c.Philosopher.ID,
			PhilosopherName: c.Philosopher.Name,
			Response:        c.Response,
			RoundNumber:     c.RoundNumber,
			WordCount:       c.WordCount,
			Timestamp:       c.Timestamp,
		}
	}
	return out
}

func flattenRounds(rounds []discussion.Round) []discussion.Contribution {
	var out []discussion.Contribution
	for _, r := range rounds {
		out = append(out, r.Contributions...)
	}
	return out
}

type Summary struct {
	ID             string                         `json:"id"`
	ConversationID string                         `json:"conversationId"`
	Model          string                         `json:"model,omitempty"`
	Summary        discussion.ConversationSummary `json:"summary"`
	CreatedAt      time.Time                      `json:"createdAt"`
}

func NewSummary(id, conversationID string, s *discussion.ConversationSummary) *Summary {
	return &Summary{ID: id, ConversationID: conversationID, Summary: *s, CreatedAt: s.CreatedAt}
}

type VideoScript struct {
	ID             string                 `json:"id"`
	SummaryID      string                 `json:"summaryId"`
	ConversationID string                 `json:"conversationId,omitempty"`
	Model          string                 `json:"model,omitempty"`
	Script         discussion.VideoScript `json:"script"`
	ExportURL      string                 `json:"exportUrl,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
}

func NewVideoScript(id, summaryID, conversationID string, v *discussion.VideoScript) *VideoScript {
	return &VideoScript{
		ID:             id,
		SummaryID:      summaryID,
		ConversationID: conversationID,
		Script:         *v,
		CreatedAt:      v.CreatedAt,
	}
}

// ListOptions filters ListConversations. Results are newest first.
type ListOptions struct {
	Status Status
	Limit  int // 0 means no limit
}

// Store is implemented by every backend. Save methods insert or replace. An empty
// parent id lists every summary or script in the file and SQL backends; DynamoStore
// only lists by parent.
type Store interface {
	SaveConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, opts ListOptions) ([]Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	SaveSummary(ctx context.Context, s *Summary) error
	GetSummary(ctx context.Context, id string) (*Summary, error)
	ListSummaries(ctx context.Context, conversationID string) ([]Summary, error)

	SaveVideoScript(ctx context.Context, v *VideoScript) error
	GetVideoScript(ctx context.Context, id string) (*VideoScript, error)
	ListVideoScripts(ctx context.Context, summaryID string) ([]VideoScript, error)

	Close() error
}

func sortNewestFirst[T any](items []T, created func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		return created(items[i]).After(created(items[j]))
	})
}

func applyListOptions(items []Conversation, opts ListOptions) []Conversation {
	out := items[:0]
	for _, c := range items {
		if opts.Status == "" || c.Status == opts.Status {
			out = append(out, c)
		}
	}
	sortNewestFirst(out, func(c Conversation) time.Time { return c.CreatedAt })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}
