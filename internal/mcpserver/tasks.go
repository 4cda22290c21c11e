package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/symposium/internal/observability"
	"github.com/apresai/symposium/internal/pipeline"
	"github.com/apresai/symposium/internal/progress"
)

// ErrBusy is returned by StartTask while another discussion is running.
var ErrBusy = errors.New("a discussion is already running")

// TaskStatus is the live view of the running discussion.
type TaskStatus struct {
	ConversationID string
	Stage          progress.Stage
	Message        string
	Percent        float64
	Speaker        string
	StartedAt      time.Time
}

type task struct {
	status TaskStatus
	cancel context.CancelFunc
}

// TaskManager runs one discussion pipeline at a time in the background.
type TaskManager struct {
	runner  *pipeline.Runner
	log     *slog.Logger
	baseCtx context.Context // cancelled on SIGTERM for graceful shutdown

	mu      sync.Mutex
	current *task
	wg      sync.WaitGroup
}

// NewTaskManager creates a task manager.
// baseCtx should be cancelled on SIGTERM so pipeline goroutines can clean up.
func NewTaskManager(baseCtx context.Context, runner *pipeline.Runner, logger *slog.Logger) *TaskManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskManager{runner: runner, log: logger, baseCtx: baseCtx}
}

// StartTask validates opts, allocates the conversation id and runs the pipeline
// in a goroutine. It returns the id immediately.
func (tm *TaskManager) StartTask(ctx context.Context, opts pipeline.RunOptions) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.current != nil {
		return "", fmt.Errorf("%w (%s)", ErrBusy, tm.current.status.ConversationID)
	}

	id, cfg, err := tm.runner.Prepare(opts.Discuss)
	if err != nil {
		return "", err
	}

	// Keep the request's trace but not its cancellation: the response is sent
	// long before the discussion ends.
	taskCtx := observability.DetachTraceContext(ctx, tm.baseCtx)
	taskCtx, cancel := context.WithCancel(taskCtx)
	tm.current = &task{
		status: TaskStatus{ConversationID: id, Stage: progress.StageDiscuss, Message: "Submitted", StartedAt: time.Now()},
		cancel: cancel,
	}

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		defer cancel()
		tm.run(taskCtx, id, opts, func(ctx context.Context) (*pipeline.Result, error) {
			return tm.runner.RunPrepared(ctx, id, cfg, opts, tm.track(id))
		})
	}()
	return id, nil
}

// Status returns the live status of id when it is the running task.
func (tm *TaskManager) Status(id string) (TaskStatus, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.current == nil || tm.current.status.ConversationID != id {
		return TaskStatus{}, false
	}
	return tm.current.status, true
}

// Running returns the id of the running discussion, if any.
func (tm *TaskManager) Running() (string, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.current == nil {
		return "", false
	}
	return tm.current.status.ConversationID, true
}

// CancelTask stops the running task for id. A discussion is reset so the partial
// transcript is stored as cancelled; later stages are stopped through the context.
func (tm *TaskManager) CancelTask(id string) bool {
	tm.mu.Lock()
	t := tm.current
	tm.mu.Unlock()
	if t == nil || t.status.ConversationID != id {
		return false
	}
	if !tm.runner.Cancel(id) {
		t.cancel()
	}
	return true
}

// Wait blocks until the running task has finished.
func (tm *TaskManager) Wait() {
	tm.wg.Wait()
}

func (tm *TaskManager) track(id string) progress.Callback {
	return func(evt progress.Event) {
		tm.mu.Lock()
		defer tm.mu.Unlock()
		if tm.current == nil || tm.current.status.ConversationID != id {
			return
		}
		s := &tm.current.status
		s.Stage, s.Message, s.Percent, s.Speaker = evt.Stage, evt.Message, evt.Percent, evt.Speaker
	}
}

func (tm *TaskManager) run(ctx context.Context, id string, opts pipeline.RunOptions, fn func(context.Context) (*pipeline.Result, error)) {
	ctx, span := tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("conversation_id", id),
			attribute.String("topic", opts.Discuss.Topic),
			attribute.Int("max_rounds", opts.Discuss.MaxRounds),
		),
	)
	defer span.End()

	defer func() {
		tm.mu.Lock()
		tm.current = nil
		tm.mu.Unlock()
	}()

	log := tm.log.With("conversation_id", id)
	start := time.Now()
	log.InfoContext(ctx, "Pipeline starting", "topic", opts.Discuss.Topic, "philosophers", opts.Discuss.PhilosopherIDs)

	res, err := fn(ctx)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		if errors.Is(err, pipeline.ErrCancelled) || ctx.Err() != nil {
			log.InfoContext(ctx, "Pipeline cancelled", "elapsed", elapsed.String())
			return
		}
		log.ErrorContext(ctx, "Pipeline failed", "error", err, "elapsed", elapsed.String())
		return
	}

	if res.Summary != nil {
		span.SetAttributes(attribute.String("summary_id", res.Summary.ID))
	}
	if res.VideoScript != nil {
		span.SetAttributes(attribute.String("video_script_id", res.VideoScript.ID))
	}
	span.SetStatus(codes.Ok, "complete")
	log.InfoContext(ctx, "Pipeline complete", "elapsed", elapsed.String())
}
