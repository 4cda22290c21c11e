// Package pipeline runs the discuss, summarize and direct stages end to end and
// persists every result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/apresai/symposium/internal/discussion"
	"github.com/apresai/symposium/internal/llm"
	"github.com/apresai/symposium/internal/philosopher"
	"github.com/apresai/symposium/internal/progress"
	"github.com/apresai/symposium/internal/realtime"
	"github.com/apresai/symposium/internal/storage"
)

// ErrCancelled is returned when a running discussion is cancelled by id.
var ErrCancelled = errors.New("conversation cancelled")

type PipelineError struct {
	Stage   progress.Stage
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Exporter publishes a finished video script and returns where it can be read.
type Exporter interface {
	Export(ctx context.Context, v *storage.VideoScript) (string, error)
}

type DiscussOptions struct {
	Topic          string
	PhilosopherIDs []string
	MaxRounds      int
	MaxWords       int
}

type SummarizeOptions struct {
	TargetRounds         int
	MaxWords             int
	PreserveParticipants bool
}

func DefaultSummarizeOptions() SummarizeOptions {
	d := discussion.DefaultSummarizationConfig()
	return SummarizeOptions{
		TargetRounds:         d.TargetRounds,
		MaxWords:             d.MaxWordsPerResponse,
		PreserveParticipants: d.PreserveOriginalParticipants,
	}
}

type DirectOptions struct {
	SkipOpening     bool
	SkipClosing     bool
	TransitionStyle string
}

func (o DirectOptions) Config() discussion.DirectorConfig {
	return discussion.DirectorConfig{
		IncludeOpeningShot:   !o.SkipOpening,
		IncludeClosingShot:   !o.SkipClosing,
		SceneTransitionStyle: o.TransitionStyle,
	}
}

// RunOptions drives Run. The summary and video stages run unless skipped.
type RunOptions struct {
	Discuss     DiscussOptions
	Summarize   SummarizeOptions
	Direct      DirectOptions
	SkipSummary bool
	SkipVideo   bool
}

// Result holds every record produced by Run. Later fields are nil when a stage was
// skipped or failed.
type Result struct {
	Conversation *storage.Conversation
	Summary      *storage.Summary
	VideoScript  *storage.VideoScript
}

type Option func(*Runner)

func WithPublisher(p realtime.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

func WithExporter(e Exporter) Option {
	return func(r *Runner) { r.exporter = e }
}

func WithTurnDelay(d time.Duration) Option {
	return func(r *Runner) { r.turnDelay = d }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMachineHook is called with every Machine the Runner creates, before its
// first transition.
func WithMachineHook(fn func(conversationID string, m *discussion.Machine)) Option {
	return func(r *Runner) { r.onMachine = fn }
}

// WithIDs replaces the record id generators.
func WithIDs(conversation, summary, video func() (string, error)) Option {
	return func(r *Runner) {
		r.newConversationID = conversation
		r.newSummaryID = summary
		r.newVideoScriptID = video
	}
}

// Runner executes pipeline stages. It is safe for concurrent use; each discussion
// gets its own Machine.
type Runner struct {
	client    llm.Client
	store     storage.Store
	catalog   *philosopher.Catalog
	profile   llm.Profile
	publisher realtime.Publisher
	exporter  Exporter
	onMachine func(string, *discussion.Machine)
	turnDelay time.Duration
	now       func() time.Time
	log       *slog.Logger

	newConversationID func() (string, error)
	newSummaryID      func() (string, error)
	newVideoScriptID  func() (string, error)

	mu     sync.Mutex
	active map[string]*discussion.Machine
}

func New(client llm.Client, store storage.Store, catalog *philosopher.Catalog, profile llm.Profile, opts ...Option) *Runner {
	r := &Runner{
		client:            client,
		store:             store,
		catalog:           catalog,
		profile:           profile,
		turnDelay:         discussion.DefaultTurnDelay,
		now:               time.Now,
		log:               slog.Default(),
		newConversationID: storage.NewConversationID,
		newSummaryID:      storage.NewSummaryID,
		newVideoScriptID:  storage.NewVideoScriptID,
		active:            make(map[string]*discussion.Machine),
	}
	for _, fn := range opts {
		fn(r)
	}
	return r
}

func (r *Runner) Store() storage.Store { return r.store }

func (r *Runner) Catalog() *philosopher.Catalog { return r.catalog }

func (r *Runner) Profile() llm.Profile { return r.profile }

// Cancel stops a discussion started by this Runner. It reports whether id was running.
func (r *Runner) Cancel(id string) bool {
	r.mu.Lock()
	m, ok := r.active[id]
	r.mu.Unlock()
	if ok {
		m.Reset()
	}
	return ok
}

// Live returns the current state of a running discussion.
func (r *Runner) Live(id string) (discussion.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.active[id]
	if !ok {
		return nil, false
	}
	return m.State(), true
}

// Prepare validates opts and allocates a conversation id without starting anything.
func (r *Runner) Prepare(opts DiscussOptions) (string, discussion.ConversationConfig, error) {
	participants, err := r.catalog.Resolve(opts.PhilosopherIDs)
	if err != nil {
		return "", discussion.ConversationConfig{}, &PipelineError{Stage: progress.StageDiscuss, Message: "unknown philosopher", Err: err}
	}
	cfg, err := discussion.NewConversationConfig(opts.Topic, participants, opts.MaxRounds, opts.MaxWords)
	if err != nil {
		return "", discussion.ConversationConfig{}, &PipelineError{Stage: progress.StageDiscuss, Message: "invalid conversation", Err: err}
	}
	id, err := r.newConversationID()
	if err != nil {
		return "", discussion.ConversationConfig{}, &PipelineError{Stage: progress.StageDiscuss, Message: "failed to allocate conversation id", Err: err}
	}
	return id, cfg, nil
}

// Discuss runs a new conversation to completion and stores it.
func (r *Runner) Discuss(ctx context.Context, opts DiscussOptions, cb progress.Callback) (*storage.Conversation, error) {
	id, cfg, err := r.Prepare(opts)
	if err != nil {
		return nil, err
	}
	m := discussion.NewMachine()
	defer r.attach(ctx, m, id)()
	return r.discuss(ctx, m, id, cfg, time.Now(), callback(cb))
}

// DiscussPrepared runs a conversation whose id and config came from Prepare.
func (r *Runner) DiscussPrepared(ctx context.Context, id string, cfg discussion.ConversationConfig, cb progress.Callback) (*storage.Conversation, error) {
	m := discussion.NewMachine()
	defer r.attach(ctx, m, id)()
	return r.discuss(ctx, m, id, cfg, time.Now(), callback(cb))
}

// Summarize condenses a stored, completed conversation.
func (r *Runner) Summarize(ctx context.Context, conversationID string, opts SummarizeOptions, cb progress.Callback) (*storage.Summary, error) {
	conv, err := r.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, &PipelineError{Stage: progress.StageSummarize, Message: "failed to load conversation", Err: err}
	}
	completed, err := conv.Completed(r.catalog)
	if err != nil {
		return nil, &PipelineError{Stage: progress.StageSummarize, Message: "conversation cannot be summarized", Err: err}
	}

	m := discussion.NewMachine()
	m.Restore(completed)
	defer r.attach(ctx, m, conversationID)()
	return r.summarize(ctx, m, conversationID, opts, time.Now(), callback(cb))
}

// Direct turns a stored summary into a video script, exporting it when an Exporter is set.
func (r *Runner) Direct(ctx context.Context, summaryID string, opts DirectOptions, cb progress.Callback) (*storage.VideoScript, error) {
	sum, err := r.store.GetSummary(ctx, summaryID)
	if err != nil {
		return nil, &PipelineError{Stage: progress.StageDirect, Message: "failed to load summary", Err: err}
	}

	m := discussion.NewMachine()
	summary := sum.Summary
	m.RestoreSummary(nil, &summary)
	defer r.attach(ctx, m, sum.ConversationID)()
	return r.direct(ctx, m, sum, opts, time.Now(), callback(cb))
}

// Run executes every stage on one Machine. The returned Result carries whatever
// was stored before an error.
func (r *Runner) Run(ctx context.Context, opts RunOptions, cb progress.Callback) (*Result, error) {
	id, cfg, err := r.Prepare(opts.Discuss)
	if err != nil {
		return nil, err
	}
	return r.RunPrepared(ctx, id, cfg, opts, cb)
}

// RunPrepared is Run for an id and config that came from Prepare. opts.Discuss is ignored.
func (r *Runner) RunPrepared(ctx context.Context, id string, cfg discussion.ConversationConfig, opts RunOptions, cb progress.Callback) (*Result, error) {
	cb = callback(cb)
	start := time.Now()

	m := discussion.NewMachine()
	defer r.attach(ctx, m, id)()

	var err error
	res := &Result{}
	res.Conversation, err = r.discuss(ctx, m, id, cfg, start, cb)
	if err != nil {
		return res, err
	}
	if opts.SkipSummary {
		cb(r.complete(start, "Conversation complete", res))
		return res, nil
	}

	res.Summary, err = r.summarize(ctx, m, id, opts.Summarize, start, cb)
	if err != nil {
		return res, err
	}
	if opts.SkipVideo {
		cb(r.complete(start, "Summary complete", res))
		return res, nil
	}

	res.VideoScript, err = r.direct(ctx, m, res.Summary, opts.Direct, start, cb)
	if err != nil {
		return res, err
	}
	cb(r.complete(start, "Video script ready", res))
	return res, nil
}

func (r *Runner) complete(start time.Time, msg string, res *Result) progress.Event {
	evt := progress.NewEvent(progress.StageComplete, msg, 1, start)
	if res.Conversation != nil {
		evt.ConversationID = res.Conversation.ID
	}
	if res.Summary != nil {
		evt.SummaryID = res.Summary.ID
	}
	if res.VideoScript != nil {
		evt.VideoScriptID = res.VideoScript.ID
		evt.ExportURL = res.VideoScript.ExportURL
	}
	return evt
}

func (r *Runner) discuss(ctx context.Context, m *discussion.Machine, id string, cfg discussion.ConversationConfig, start time.Time, cb progress.Callback) (*storage.Conversation, error) {
	log := r.log.With("conversation_id", id)
	rec := &recorder{id: id, store: r.store, model: r.profile.Philosophical, now: r.now, log: log}
	totalTurns := len(cfg.Participants) * cfg.MaxRounds

	stop := m.Observe(func(s discussion.State) {
		rec.observe(ctx, s)
		if ip, ok := s.(*discussion.InProgress); ok {
			if p, ok := ip.CurrentPhilosopher(); ok {
				turn := len(ip.Contributions()) + 1
				evt := progress.NewEvent(progress.StageDiscuss,
					fmt.Sprintf("%s is speaking (round %d/%d)", p.Name, ip.CurrentRound, cfg.MaxRounds),
					progress.TurnPercent(turn-1, totalTurns), start)
				evt.Turn, evt.TotalTurns, evt.Round, evt.Speaker = turn, totalTurns, ip.CurrentRound, p.Name
				evt.ConversationID = id
				cb(evt)
			}
		}
	})
	defer stop()

	r.track(id, m)
	defer r.untrack(id)

	engine := discussion.NewEngine(r.client, m,
		discussion.WithModel(r.profile.Philosophical),
		discussion.WithTurnDelay(r.turnDelay),
		discussion.WithClock(r.now),
		discussion.WithLogger(log),
	)
	final := engine.Start(ctx, cfg)

	var stageErr error
	switch st := final.(type) {
	case *discussion.Completed:
	case *discussion.Failed:
		stageErr = &PipelineError{Stage: progress.StageDiscuss, Message: st.Message, Err: st.Cause}
	case *discussion.NotStarted:
		rec.observe(ctx, &discussion.Failed{Message: "Conversation cancelled"})
		stageErr = &PipelineError{Stage: progress.StageDiscuss, Message: "stopped", Err: ErrCancelled}
	default:
		stageErr = &PipelineError{Stage: progress.StageDiscuss, Message: fmt.Sprintf("unexpected state %s", final.Kind())}
	}

	conv, saveErr := rec.result()
	if stageErr != nil {
		evt := progress.NewEvent(progress.StageDiscuss, "Discussion failed", 0, start)
		evt.Error, evt.ConversationID = stageErr, id
		cb(evt)
		return conv, stageErr
	}
	if saveErr != nil {
		return conv, &PipelineError{Stage: progress.StageDiscuss, Message: "failed to save conversation", Err: saveErr}
	}

	evt := progress.NewEvent(progress.StageDiscuss,
		fmt.Sprintf("Discussion complete (%d contributions)", len(conv.Contributions)), 0.7, start)
	evt.ConversationID = id
	cb(evt)
	return conv, nil
}

func (r *Runner) summarize(ctx context.Context, m *discussion.Machine, conversationID string, opts SummarizeOptions, start time.Time, cb progress.Callback) (*storage.Summary, error) {
	fail := func(msg string, err error) error {
		m.SetError(msg, err)
		perr := &PipelineError{Stage: progress.StageSummarize, Message: msg, Err: err}
		evt := progress.NewEvent(progress.StageSummarize, "Summary failed", 0.7, start)
		evt.Error, evt.ConversationID = perr, conversationID
		cb(evt)
		return perr
	}

	cfg, err := discussion.NewSummarizationConfig(opts.TargetRounds, opts.MaxWords, opts.PreserveParticipants)
	if err != nil {
		return nil, fail("invalid summarization settings", err)
	}
	completed, ok := m.State().(*discussion.Completed)
	if !ok {
		return nil, fail("conversation is not completed", nil)
	}

	m.StartSummarization(cfg)
	evt := progress.NewEvent(progress.StageSummarize, "Condensing the conversation", 0.75, start)
	evt.ConversationID = conversationID
	cb(evt)

	summary, err := discussion.NewSummarizer(r.client,
		discussion.WithModel(r.profile.Summarization),
		discussion.WithClock(r.now),
		discussion.WithLogger(r.log.With("conversation_id", conversationID)),
	).Summarize(ctx, completed, cfg)
	if err != nil {
		return nil, fail("Failed to summarize conversation", err)
	}
	m.CompleteSummarization(summary)
	logReview(r.log.With("conversation_id", conversationID), "summary", discussion.ReviewSummary(summary, cfg, speakerNames(completed)))

	id, err := r.newSummaryID()
	if err != nil {
		return nil, fail("failed to allocate summary id", err)
	}
	rec := storage.NewSummary(id, conversationID, summary)
	rec.Model = r.profile.Summarization
	if err := r.store.SaveSummary(context.WithoutCancel(ctx), rec); err != nil {
		return nil, &PipelineError{Stage: progress.StageSummarize, Message: "failed to save summary", Err: err}
	}

	evt = progress.NewEvent(progress.StageSummarize,
		fmt.Sprintf("Summary ready (%d rounds, %d words)", len(summary.Rounds), summary.TotalWordCount()), 0.85, start)
	evt.ConversationID, evt.SummaryID = conversationID, rec.ID
	cb(evt)
	return rec, nil
}

func (r *Runner) direct(ctx context.Context, m *discussion.Machine, sum *storage.Summary, opts DirectOptions, start time.Time, cb progress.Callback) (*storage.VideoScript, error) {
	fail := func(msg string, err error) error {
		m.SetError(msg, err)
		perr := &PipelineError{Stage: progress.StageDirect, Message: msg, Err: err}
		evt := progress.NewEvent(progress.StageDirect, "Video script failed", 0.85, start)
		evt.Error, evt.ConversationID, evt.SummaryID = perr, sum.ConversationID, sum.ID
		cb(evt)
		return perr
	}

	cfg := opts.Config()
	m.StartVideoScriptCreation(cfg)
	evt := progress.NewEvent(progress.StageDirect, "Directing the video script", 0.9, start)
	evt.ConversationID, evt.SummaryID = sum.ConversationID, sum.ID
	cb(evt)

	summary := sum.Summary
	script, err := discussion.NewDirector(r.client,
		discussion.WithModel(r.profile.Director),
		discussion.WithClock(r.now),
		discussion.WithLogger(r.log.With("summary_id", sum.ID)),
	).CreateVideoScript(ctx, &summary, cfg)
	if err != nil {
		return nil, fail("Failed to create video script", err)
	}
	m.CompleteVideoScript(script)
	logReview(r.log.With("summary_id", sum.ID), "video script", discussion.ReviewVideoScript(script, cfg))

	id, err := r.newVideoScriptID()
	if err != nil {
		return nil, fail("failed to allocate video script id", err)
	}
	rec := storage.NewVideoScript(id, sum.ID, sum.ConversationID, script)
	rec.Model = r.profile.Director
	saveCtx := context.WithoutCancel(ctx)
	if err := r.store.SaveVideoScript(saveCtx, rec); err != nil {
		return nil, &PipelineError{Stage: progress.StageDirect, Message: "failed to save video script", Err: err}
	}

	if r.exporter != nil {
		evt := progress.NewEvent(progress.StageExport, "Exporting video script", 0.95, start)
		evt.VideoScriptID = rec.ID
		cb(evt)

		url, err := r.exporter.Export(ctx, rec)
		if err != nil {
			return rec, &PipelineError{Stage: progress.StageExport, Message: "failed to export video script", Err: err}
		}
		rec.ExportURL = url
		if err := r.store.SaveVideoScript(saveCtx, rec); err != nil {
			return rec, &PipelineError{Stage: progress.StageExport, Message: "failed to save export location", Err: err}
		}
	}

	evt = progress.NewEvent(progress.StageDirect,
		fmt.Sprintf("Video script ready (%d scenes)", script.TotalScenes()), 0.99, start)
	evt.ConversationID, evt.SummaryID, evt.VideoScriptID = sum.ConversationID, sum.ID, rec.ID
	evt.ExportURL = rec.ExportURL
	cb(evt)
	return rec, nil
}

func (r *Runner) attach(ctx context.Context, m *discussion.Machine, id string) func() {
	if r.onMachine != nil {
		r.onMachine(id, m)
	}
	if r.publisher == nil {
		return func() {}
	}
	return realtime.Attach(context.WithoutCancel(ctx), m, id, r.publisher, r.log)
}

func (r *Runner) track(id string, m *discussion.Machine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[id] = m
}

func (r *Runner) untrack(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, id)
}

func callback(cb progress.Callback) progress.Callback {
	if cb == nil {
		return progress.NopCallback
	}
	return cb
}

func logReview(log *slog.Logger, what string, issues []discussion.ReviewIssue) {
	for _, issue := range issues {
		log.Warn("Review issue in "+what, "category", issue.Category, "severity", issue.Severity, "message", issue.Message)
	}
}

func speakerNames(c *discussion.Completed) []string {
	names := make([]string, len(c.Config.Participants))
	for i, p := range c.Config.Participants {
		names[i] = p.Name
	}
	return names
}
