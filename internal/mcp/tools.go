package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/nami/internal/analytics"
	"github.com/hpungsan/nami/internal/ops"
	"github.com/hpungsan/nami/internal/tracker"
)

func strategyIDs() []string {
	out := make([]string, 0, len(tracker.Strategies))
	for _, s := range tracker.Strategies {
		out = append(out, s.ID)
	}
	return out
}

var urgeRecordToolDef = mcp.NewTool("urge_record",
	mcp.WithDescription("Record one urge episode: strength and triggers, the coping strategy tried, then money saved, a memo and how well it worked."),
	mcp.WithNumber("strength", mcp.Description("Urge strength 0-10 (default 5)"), mcp.Min(tracker.MinStrength), mcp.Max(tracker.MaxStrength)),
	mcp.WithArray("triggers", mcp.Description("Trigger ids (person, place, emotion, money, other) or their Japanese labels"), mcp.WithStringItems()),
	mcp.WithString("strategy", mcp.Description("Catalog strategy id; omit to skip"), mcp.Enum(strategyIDs()...)),
	mcp.WithAny("saved_amount", mcp.Description("Money not spent, number or text; invalid input counts as 0")),
	mcp.WithString("memo", mcp.Description("Free-form note"), mcp.MaxLength(2000)),
	mcp.WithNumber("effectiveness", mcp.Description("Self-rated effectiveness -3..3"), mcp.Min(tracker.MinEffectiveness), mcp.Max(tracker.MaxEffectiveness)),
	mcp.WithString("start_time", mcp.Description("RFC 3339 start time (default now)")),
	mcp.WithString("end_time", mcp.Description("RFC 3339 end time (default now)")),
)

var moodLogToolDef = mcp.NewTool("mood_log",
	mcp.WithDescription("Log a standalone mood snapshot."),
	mcp.WithString("mood_icon", mcp.Description("Mood emoji (default 😊)"), mcp.Enum(tracker.MoodIcons...)),
	mcp.WithString("body_sensation", mcp.Description("What the body feels"), mcp.MaxLength(500)),
	mcp.WithString("color", mcp.Description("Hex color tag (default #63B3ED)")),
	mcp.WithNumber("strength", mcp.Description("Intensity 0-10 (default 5)"), mcp.Min(tracker.MinStrength), mcp.Max(tracker.MaxStrength)),
	mcp.WithString("memo", mcp.Description("Free-form note"), mcp.MaxLength(2000)),
	mcp.WithString("timestamp", mcp.Description("RFC 3339 time (default now)")),
)

var statsGetToolDef = mcp.NewTool("stats_get",
	mcp.WithDescription("Compute streak, total saved, trigger histogram, weekday/time-of-day heatmap, strength trend and a one-line summary."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("now", mcp.Description("RFC 3339 reference time (default now)")),
)

var historyListToolDef = mcp.NewTool("history_list",
	mcp.WithDescription("List urge events and mood logs merged, newest first."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("kind", mcp.Description("Only this kind; omit for both"), mcp.Enum(string(analytics.EntryUrge), string(analytics.EntryMood))),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)"), mcp.Min(1), mcp.Max(ops.MaxListLimit)),
	mcp.WithNumber("offset", mcp.Description("Entries to skip"), mcp.Min(0)),
)

var chatSendToolDef = mcp.NewTool("chat_send",
	mcp.WithDescription("Send a message to the supportive assistant. Both the message and the reply are saved; on upstream failure the reply is a fixed apology."),
	mcp.WithOpenWorldHintAnnotation(true),
	mcp.WithString("message", mcp.Description("Message text"), mcp.Required()),
)

var chatHistoryToolDef = mcp.NewTool("chat_history",
	mcp.WithDescription("Return a window of the assistant conversation in chronological order. Offset 0 is the most recent window."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)"), mcp.Min(1), mcp.Max(ops.MaxListLimit)),
	mcp.WithNumber("offset", mcp.Description("Messages to skip from the newest"), mcp.Min(0)),
)

var settingsGetToolDef = mcp.NewTool("settings_get",
	mcp.WithDescription("Return the user settings."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var settingsUpdateToolDef = mcp.NewTool("settings_update",
	mcp.WithDescription("Change the nickname used in greetings and summaries."),
	mcp.WithIdempotentHintAnnotation(true),
	mcp.WithString("nickname", mcp.Description("New nickname"), mcp.Required(), mcp.MaxLength(30)),
)

var strategyListToolDef = mcp.NewTool("strategy_list",
	mcp.WithDescription("List the coping-strategy catalog."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var dataExportToolDef = mcp.NewTool("data_export",
	mcp.WithDescription("Export all data to a JSONL file in the exports directory."),
	mcp.WithString("path", mcp.Description("Target .jsonl path (default exports/<nickname>-<timestamp>.jsonl)")),
)

var dataImportToolDef = mcp.NewTool("data_import",
	mcp.WithDescription("Import a JSONL export. append adds records and keeps settings; replace swaps all data and fails without changes on any bad line."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("path", mcp.Description("Source .jsonl path"), mcp.Required()),
	mcp.WithString("mode", mcp.Description("append (default) or replace"), mcp.Enum(string(ops.ImportModeAppend), string(ops.ImportModeReplace))),
)
