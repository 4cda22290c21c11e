package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/apresai/symposium/internal/discussion"
	"github.com/apresai/symposium/internal/philosopher"
	"github.com/apresai/symposium/internal/pipeline"
	"github.com/apresai/symposium/internal/storage"
)

var tracer = otel.Tracer("symposium-mcp")

// ToolDefs returns the MCP tool definitions.
func ToolDefs() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "list_philosophers",
			Description: "List the philosophers that can take part in a discussion. Optionally filter by era or search text.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"era": map[string]any{
						"type":        "string",
						"description": "Only philosophers from this era, e.g. \"Ancient Greece\"",
					},
					"search": map[string]any{
						"type":        "string",
						"description": "Case-insensitive match on name, description, era or nationality",
					},
				},
			},
		},
		{
			Name:        "start_discussion",
			Description: "Start a round-robin philosophical discussion. Runs in the background and returns a conversation ID. Use get_discussion to follow it.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"topic": map[string]any{
						"type":        "string",
						"description": "The question the philosophers discuss",
					},
					"philosophers": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Philosopher IDs in speaking order (see list_philosophers)",
					},
					"rounds": map[string]any{
						"type":        "integer",
						"description": "Number of rounds; every philosopher speaks once per round",
						"default":     discussion.DefaultMaxRounds,
					},
					"max_words": map[string]any{
						"type":        "integer",
						"description": "Maximum words per response",
						"default":     discussion.DefaultMaxWordsPerResponse,
					},
					"summarize": map[string]any{
						"type":        "boolean",
						"description": "Summarize the conversation when it completes",
						"default":     false,
					},
					"create_video_script": map[string]any{
						"type":        "boolean",
						"description": "Summarize, then write a video script (implies summarize)",
						"default":     false,
					},
				},
				Required: []string{"topic", "philosophers"},
			},
		},
		{
			Name:        "get_discussion",
			Description: "Get a discussion by ID: status, live progress while it runs, the transcript and any summaries.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"conversation_id": map[string]any{
						"type":        "string",
						"description": "The conversation ID returned from start_discussion",
					},
					"include_transcript": map[string]any{
						"type":        "boolean",
						"description": "Include every contribution (default true)",
						"default":     true,
					},
				},
				Required: []string{"conversation_id"},
			},
		},
		{
			Name:        "list_discussions",
			Description: "List stored discussions, newest first.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"status": map[string]any{
						"type":        "string",
						"description": "Filter by status: in_progress, completed or error",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results (default 20)",
						"default":     20,
					},
				},
			},
		},
		{
			Name:        "summarize_discussion",
			Description: "Condense a completed discussion into a short summary suitable for a video. Returns the stored summary.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"conversation_id": map[string]any{
						"type":        "string",
						"description": "A completed conversation ID",
					},
					"target_rounds": map[string]any{
						"type":        "integer",
						"description": "Rounds to keep in the summary",
						"default":     discussion.DefaultTargetRounds,
					},
					"max_words": map[string]any{
						"type":        "integer",
						"description": "Maximum words per summarized response",
						"default":     discussion.DefaultSummaryMaxWords,
					},
					"allow_new_participants": map[string]any{
						"type":        "boolean",
						"description": "Let the summary drop or merge speakers",
						"default":     false,
					},
				},
				Required: []string{"conversation_id"},
			},
		},
		{
			Name:        "create_video_script",
			Description: "Turn a summary into a scene-by-scene video script. Returns the stored script and its export URL when exporting is configured.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"summary_id": map[string]any{
						"type":        "string",
						"description": "A summary ID returned from summarize_discussion or get_discussion",
					},
					"transition_style": map[string]any{
						"type":        "string",
						"description": "Visual style for transition scenes",
						"default":     discussion.DefaultSceneTransitionStyle,
					},
					"include_opening": map[string]any{
						"type":        "boolean",
						"description": "Open with an establishing shot",
						"default":     true,
					},
					"include_closing": map[string]any{
						"type":        "boolean",
						"description": "Close with a final shot",
						"default":     true,
					},
				},
				Required: []string{"summary_id"},
			},
		},
		{
			Name:        "cancel_discussion",
			Description: "Stop the running discussion. The partial transcript is kept.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"conversation_id": map[string]any{
						"type":        "string",
						"description": "The running conversation ID",
					},
				},
				Required: []string{"conversation_id"},
			},
		},
	}
}

// Handlers contains tool handler implementations.
type Handlers struct {
	tasks  *TaskManager
	runner *pipeline.Runner
	log    *slog.Logger
}

// NewHandlers creates tool handlers.
func NewHandlers(tasks *TaskManager, runner *pipeline.Runner, logger *slog.Logger) *Handlers {
	return &Handlers{tasks: tasks, runner: runner, log: logger}
}

// Register adds every tool to s.
func (h *Handlers) Register(s *server.MCPServer) {
	handlers := map[string]server.ToolHandlerFunc{
		"list_philosophers":    h.HandleListPhilosophers,
		"start_discussion":     h.HandleStartDiscussion,
		"get_discussion":       h.HandleGetDiscussion,
		"list_discussions":     h.HandleListDiscussions,
		"summarize_discussion": h.HandleSummarizeDiscussion,
		"create_video_script":  h.HandleCreateVideoScript,
		"cancel_discussion":    h.HandleCancelDiscussion,
	}
	for _, t := range ToolDefs() {
		s.AddTool(t, handlers[t.Name])
	}
}

// HandleListPhilosophers returns the catalog, optionally filtered.
func (h *Handlers) HandleListPhilosophers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, span := tracer.Start(ctx, "tool.list_philosophers")
	defer span.End()

	catalog := h.runner.Catalog()
	ps := catalog.All()
	if era := mcp.ParseString(req, "era", ""); era != "" {
		ps = catalog.ByEra(era)
	} else if q := mcp.ParseString(req, "search", ""); q != "" {
		ps = catalog.Search(q)
	}
	span.SetAttributes(attribute.Int("result_count", len(ps)))

	out := make([]map[string]any, 0, len(ps))
	for _, p := range ps {
		out = append(out, philosopherJSON(p))
	}
	return jsonResult(map[string]any{"philosophers": out, "count": len(out)})
}

// HandleStartDiscussion starts a background discussion.
func (h *Handlers) HandleStartDiscussion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.start_discussion")
	defer span.End()

	direct := parseBoolParam(req, "create_video_script", false)
	opts := pipeline.RunOptions{
		Discuss: pipeline.DiscussOptions{
			Topic:          strings.TrimSpace(mcp.ParseString(req, "topic", "")),
			PhilosopherIDs: parseStringList(req, "philosophers"),
			MaxRounds:      parseIntParam(req, "rounds", discussion.DefaultMaxRounds),
			MaxWords:       parseIntParam(req, "max_words", discussion.DefaultMaxWordsPerResponse),
		},
		Summarize:   pipeline.DefaultSummarizeOptions(),
		Direct:      pipeline.DirectOptions{TransitionStyle: discussion.DefaultSceneTransitionStyle},
		SkipSummary: !direct && !parseBoolParam(req, "summarize", false),
		SkipVideo:   !direct,
	}

	span.SetAttributes(
		attribute.String("topic", opts.Discuss.Topic),
		attribute.StringSlice("philosophers", opts.Discuss.PhilosopherIDs),
		attribute.Int("rounds", opts.Discuss.MaxRounds),
	)

	if opts.Discuss.Topic == "" {
		span.SetStatus(codes.Error, "missing topic")
		return mcp.NewToolResultError("topic is required"), nil
	}
	if len(opts.Discuss.PhilosopherIDs) == 0 {
		span.SetStatus(codes.Error, "missing philosophers")
		return mcp.NewToolResultError("at least one philosopher is required"), nil
	}

	id, err := h.tasks.StartTask(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start task failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to start discussion: %v", err)), nil
	}

	span.SetAttributes(attribute.String("conversation_id", id))
	h.log.InfoContext(ctx, "Discussion started", "conversation_id", id, "topic", opts.Discuss.Topic)

	return jsonResult(map[string]any{
		"conversation_id": id,
		"status":          "submitted",
		"message":         "Discussion started. Use get_discussion with this conversation_id to follow it.",
	})
}

// HandleGetDiscussion returns the stored discussion plus live progress.
func (h *Handlers) HandleGetDiscussion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.get_discussion")
	defer span.End()

	id := mcp.ParseString(req, "conversation_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing conversation_id")
		return mcp.NewToolResultError("conversation_id is required"), nil
	}
	span.SetAttributes(attribute.String("conversation_id", id))

	store := h.runner.Store()
	c, err := store.GetConversation(ctx, id)
	live, running := h.tasks.Status(id)
	switch {
	case errors.Is(err, storage.ErrNotFound) && running:
		// Submitted but the first state has not been stored yet.
		return jsonResult(map[string]any{
			"conversation_id": id,
			"status":          "submitted",
			"running":         true,
			"stage":           string(live.Stage),
			"stage_message":   live.Message,
		})
	case errors.Is(err, storage.ErrNotFound):
		span.SetStatus(codes.Error, "not found")
		return mcp.NewToolResultError(fmt.Sprintf("discussion %s not found", id)), nil
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "get discussion failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to get discussion: %v", err)), nil
	}

	result := conversationJSON(c)
	result["running"] = running
	if running {
		result["stage"] = string(live.Stage)
		result["stage_message"] = live.Message
		result["progress_percent"] = live.Percent
		if live.Speaker != "" {
			result["speaker"] = live.Speaker
		}
	}
	if parseBoolParam(req, "include_transcript", true) {
		result["contributions"] = c.Contributions
	}

	sums, err := store.ListSummaries(ctx, id)
	if err != nil {
		h.log.WarnContext(ctx, "List summaries failed", "conversation_id", id, "error", err)
	}
	if len(sums) > 0 {
		ids := make([]string, len(sums))
		for i, s := range sums {
			ids[i] = s.ID
		}
		result["summary_ids"] = ids
	}
	return jsonResult(result)
}

// HandleListDiscussions returns stored discussions, newest first.
func (h *Handlers) HandleListDiscussions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.list_discussions")
	defer span.End()

	status, err := storage.ParseStatus(mcp.ParseString(req, "status", ""))
	if err != nil {
		span.SetStatus(codes.Error, "bad status")
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := parseIntParam(req, "limit", 20)
	span.SetAttributes(attribute.String("status", string(status)), attribute.Int("limit", limit))

	cs, err := h.runner.Store().ListConversations(ctx, storage.ListOptions{Status: status, Limit: limit})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list discussions failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to list discussions: %v", err)), nil
	}
	span.SetAttributes(attribute.Int("result_count", len(cs)))

	out := make([]map[string]any, 0, len(cs))
	for i := range cs {
		out = append(out, conversationJSON(&cs[i]))
	}
	return jsonResult(map[string]any{"discussions": out, "count": len(out)})
}

// HandleSummarizeDiscussion summarizes a stored conversation and waits for the result.
func (h *Handlers) HandleSummarizeDiscussion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.summarize_discussion")
	defer span.End()

	id := mcp.ParseString(req, "conversation_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing conversation_id")
		return mcp.NewToolResultError("conversation_id is required"), nil
	}
	if running, ok := h.tasks.Running(); ok && running == id {
		return mcp.NewToolResultError(fmt.Sprintf("discussion %s is still running", id)), nil
	}
	opts := pipeline.SummarizeOptions{
		TargetRounds:         parseIntParam(req, "target_rounds", discussion.DefaultTargetRounds),
		MaxWords:             parseIntParam(req, "max_words", discussion.DefaultSummaryMaxWords),
		PreserveParticipants: !parseBoolParam(req, "allow_new_participants", false),
	}
	span.SetAttributes(attribute.String("conversation_id", id), attribute.Int("target_rounds", opts.TargetRounds))

	s, err := h.runner.Summarize(ctx, id, opts, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "summarize failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to summarize: %v", err)), nil
	}
	span.SetAttributes(attribute.String("summary_id", s.ID))
	h.log.InfoContext(ctx, "Summary created", "conversation_id", id, "summary_id", s.ID)

	result := map[string]any{
		"summary_id":      s.ID,
		"conversation_id": s.ConversationID,
		"word_count":      s.Summary.TotalWordCount(),
		"text":            discussion.SummaryText(&s.Summary),
		"summary":         s.Summary,
	}
	cfg := discussion.SummarizationConfig{
		TargetRounds:                 opts.TargetRounds,
		MaxWordsPerResponse:          opts.MaxWords,
		PreserveOriginalParticipants: opts.PreserveParticipants,
	}
	if issues := discussion.ReviewSummary(&s.Summary, cfg, nil); len(issues) > 0 {
		result["review"] = issues
	}
	return jsonResult(result)
}

// HandleCreateVideoScript directs a stored summary and waits for the result.
func (h *Handlers) HandleCreateVideoScript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.create_video_script")
	defer span.End()

	id := mcp.ParseString(req, "summary_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing summary_id")
		return mcp.NewToolResultError("summary_id is required"), nil
	}
	opts := pipeline.DirectOptions{
		TransitionStyle: mcp.ParseString(req, "transition_style", discussion.DefaultSceneTransitionStyle),
		SkipOpening:     !parseBoolParam(req, "include_opening", true),
		SkipClosing:     !parseBoolParam(req, "include_closing", true),
	}
	span.SetAttributes(attribute.String("summary_id", id), attribute.String("transition_style", opts.TransitionStyle))

	v, err := h.runner.Direct(ctx, id, opts, nil)
	if err != nil && v == nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "direct failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to create video script: %v", err)), nil
	}

	result := map[string]any{
		"video_script_id": v.ID,
		"summary_id":      v.SummaryID,
		"title":           v.Script.Title,
		"scenes":          v.Script.TotalScenes(),
		"script":          v.Script,
	}
	if v.ExportURL != "" {
		result["export_url"] = v.ExportURL
	}
	if issues := discussion.ReviewVideoScript(&v.Script, opts.Config()); len(issues) > 0 {
		result["review"] = issues
	}
	if err != nil {
		// Stored but the export failed.
		span.RecordError(err)
		result["export_error"] = err.Error()
	}
	h.log.InfoContext(ctx, "Video script created", "summary_id", id, "video_script_id", v.ID)
	return jsonResult(result)
}

// HandleCancelDiscussion stops the running discussion.
func (h *Handlers) HandleCancelDiscussion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.cancel_discussion")
	defer span.End()

	id := mcp.ParseString(req, "conversation_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing conversation_id")
		return mcp.NewToolResultError("conversation_id is required"), nil
	}
	span.SetAttributes(attribute.String("conversation_id", id))

	if !h.tasks.CancelTask(id) {
		return mcp.NewToolResultError(fmt.Sprintf("discussion %s is not running", id)), nil
	}
	h.log.InfoContext(ctx, "Discussion cancelled", "conversation_id", id)
	return jsonResult(map[string]any{
		"conversation_id": id,
		"status":          "cancelling",
	})
}

func philosopherJSON(p philosopher.Philosopher) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"era":         p.Era,
		"nationality": p.Nationality,
		"description": p.Description,
	}
}

func conversationJSON(c *storage.Conversation) map[string]any {
	names := make([]string, len(c.Participants))
	for i, p := range c.Participants {
		names[i] = p.Name
	}
	m := map[string]any{
		"conversation_id":    c.ID,
		"topic":              c.Topic,
		"status":             c.Status,
		"philosophers":       names,
		"max_rounds":         c.MaxRounds,
		"contribution_count": len(c.Contributions),
		"created_at":         c.CreatedAt,
	}
	if c.CurrentRound > 0 {
		m["current_round"] = c.CurrentRound
	}
	if c.ErrorMessage != "" {
		m["error"] = c.ErrorMessage
	}
	if c.CompletedAt != nil {
		m["completed_at"] = c.CompletedAt
	}
	if c.Model != "" {
		m["model"] = c.Model
	}
	return m
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func parseIntParam(req mcp.CallToolRequest, key string, defaultVal int) int {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	raw, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultVal
	}
}

func parseBoolParam(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	switch v := req.GetArguments()[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// parseStringList accepts a JSON array of strings or a comma-separated string.
func parseStringList(req mcp.CallToolRequest, key string) []string {
	var items []string
	switch v := req.GetArguments()[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				items = append(items, s)
			}
		}
	case []string:
		items = v
	case string:
		items = strings.Split(v, ",")
	}
	var out []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
