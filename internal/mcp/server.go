// Package mcp exposes the tracker operations as MCP tools over stdio.
package mcp

import (
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/nami/internal/chat"
	"github.com/hpungsan/nami/internal/config"
	"github.com/hpungsan/nami/internal/ops"
	"github.com/hpungsan/nami/internal/store"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"urge", "mood", "stats", "history", "chat", "settings", "strategy", "data"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"urge_record": {
		def:     urgeRecordToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleUrgeRecord },
	},
	"mood_log": {
		def:     moodLogToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMoodLog },
	},
	"stats_get": {
		def:     statsGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStats },
	},
	"history_list": {
		def:     historyListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistory },
	},
	"chat_send": {
		def:     chatSendToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatSend },
	},
	"chat_history": {
		def:     chatHistoryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatHistory },
	},
	"settings_get": {
		def:     settingsGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSettingsGet },
	},
	"settings_update": {
		def:     settingsUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSettingsUpdate },
	},
	"strategy_list": {
		def:     strategyListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStrategyList },
	},
	"data_export": {
		def:     dataExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"data_import": {
		def:     dataImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImport },
	},
}

// AllToolNames returns every registered tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if !slices.Contains(KnownTypes, name) {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "urge_record" → "urge").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}
	tools := make([]string, 0)
	for name := range toolRegistry {
		if slices.Contains(types, GetTypeForTool(name)) {
			tools = append(tools, name)
		}
	}
	return tools
}

// Deps are the long-lived services the tools operate on.
type Deps struct {
	Store  *store.Store
	Relay  *chat.Relay
	Policy ops.PathPolicy
}

// NewServer creates a new MCP server with the tracker tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(deps Deps, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"nami",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	h := NewHandlers(deps, cfg)

	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// Run starts the MCP server using stdio transport.
func Run(deps Deps, cfg *config.Config, version string) error {
	return server.ServeStdio(NewServer(deps, cfg, version))
}
