package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/nami/internal/chat"
	"github.com/hpungsan/nami/internal/config"
	"github.com/hpungsan/nami/internal/errors"
	"github.com/hpungsan/nami/internal/ops"
	"github.com/hpungsan/nami/internal/store"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	st     *store.Store
	relay  *chat.Relay
	policy ops.PathPolicy
	cfg    *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps, cfg *config.Config) *Handlers {
	return &Handlers{st: deps.Store, relay: deps.Relay, policy: deps.Policy, cfg: cfg}
}

// Request types for each tool

// UrgeRecordRequest represents the arguments for urge_record.
type UrgeRecordRequest struct {
	Strength      *int     `json:"strength,omitempty"`
	Triggers      []string `json:"triggers,omitempty"`
	Strategy      string   `json:"strategy,omitempty"`
	SavedAmount   any      `json:"saved_amount,omitempty"`
	Memo          string   `json:"memo,omitempty"`
	Effectiveness int      `json:"effectiveness,omitempty"`
	StartTime     string   `json:"start_time,omitempty"`
	EndTime       string   `json:"end_time,omitempty"`
}

// MoodLogRequest represents the arguments for mood_log.
type MoodLogRequest struct {
	MoodIcon      string `json:"mood_icon,omitempty"`
	BodySensation string `json:"body_sensation,omitempty"`
	Color         string `json:"color,omitempty"`
	Strength      *int   `json:"strength,omitempty"`
	Memo          string `json:"memo,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
}

// StatsRequest represents the arguments for stats_get.
type StatsRequest struct {
	Now string `json:"now,omitempty"`
}

// HistoryRequest represents the arguments for history_list.
type HistoryRequest struct {
	Kind   string `json:"kind,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// ChatSendRequest represents the arguments for chat_send.
type ChatSendRequest struct {
	Message string `json:"message"`
}

// ChatHistoryRequest represents the arguments for chat_history.
type ChatHistoryRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// SettingsUpdateRequest represents the arguments for settings_update.
type SettingsUpdateRequest struct {
	Nickname string `json:"nickname"`
}

// ExportRequest represents the arguments for data_export.
type ExportRequest struct {
	Path string `json:"path,omitempty"`
}

// ImportRequest represents the arguments for data_import.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// Handler implementations

// HandleUrgeRecord handles the urge_record tool call.
func (h *Handlers) HandleUrgeRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UrgeRecordRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	start, err := parseTime("start_time", input.StartTime)
	if err != nil {
		return errorResult(err), nil
	}
	end, err := parseTime("end_time", input.EndTime)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.RecordUrge(ctx, h.st, ops.RecordUrgeInput{
		Strength:      input.Strength,
		Triggers:      input.Triggers,
		Strategy:      input.Strategy,
		SavedAmount:   amountText(input.SavedAmount),
		Memo:          input.Memo,
		Effectiveness: input.Effectiveness,
		StartTime:     start,
		EndTime:       end,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleMoodLog handles the mood_log tool call.
func (h *Handlers) HandleMoodLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MoodLogRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	ts, err := parseTime("timestamp", input.Timestamp)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.LogMood(ctx, h.st, ops.LogMoodInput{
		MoodIcon:      input.MoodIcon,
		BodySensation: input.BodySensation,
		Color:         input.Color,
		Strength:      input.Strength,
		Memo:          input.Memo,
		Timestamp:     ts,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleStats handles the stats_get tool call.
func (h *Handlers) HandleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StatsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	now, err := parseTime("now", input.Now)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Stats(h.st, h.cfg, ops.StatsInput{Now: now})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleHistory handles the history_list tool call.
func (h *Handlers) HandleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.History(h.st, ops.HistoryInput{
		Kind:   input.Kind,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleChatSend handles the chat_send tool call.
func (h *Handlers) HandleChatSend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChatSendRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SendChat(ctx, h.relay, ops.SendChatInput{Message: input.Message})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleChatHistory handles the chat_history tool call.
func (h *Handlers) HandleChatHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChatHistoryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return successResult(ops.ChatHistory(h.st, ops.ChatHistoryInput{
		Limit:  input.Limit,
		Offset: input.Offset,
	}))
}

// HandleSettingsGet handles the settings_get tool call.
func (h *Handlers) HandleSettingsGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(ops.GetSettings(h.st))
}

// HandleSettingsUpdate handles the settings_update tool call.
func (h *Handlers) HandleSettingsUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SettingsUpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.UpdateSettings(ctx, h.st, ops.UpdateSettingsInput{Nickname: input.Nickname})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleStrategyList handles the strategy_list tool call.
func (h *Handlers) HandleStrategyList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(ops.ListStrategies())
}

// HandleExport handles the data_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.st, h.policy, ops.ExportInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleImport handles the data_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Import(ctx, h.st, h.policy, ops.ImportInput{
		Path: input.Path,
		Mode: ops.ImportMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// Argument helpers

// parseTime parses an optional RFC 3339 argument. Empty means zero.
func parseTime(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.NewInvalidRequest(fmt.Sprintf("%s must be an RFC 3339 time", field))
	}
	return t, nil
}

// amountText turns a JSON number or string into the free-text amount the
// urge wizard parses.
func amountText(v any) string {
	switch a := v.(type) {
	case nil:
		return ""
	case string:
		return a
	case float64:
		return fmt.Sprint(a)
	default:
		return ""
	}
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var namiErr *errors.NamiError
	if stderrors.As(err, &namiErr) {
		// Keep wrapper context such as "line 3: " in front of the message.
		msg := strings.TrimSuffix(err.Error(), namiErr.Error()) + namiErr.Message
		errorObj := map[string]any{
			"code":    namiErr.Code,
			"message": msg,
			"status":  namiErr.Status,
		}
		if namiErr.Code != errors.ErrInternal && namiErr.Details != nil {
			errorObj["details"] = namiErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
