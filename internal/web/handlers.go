package web

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/nami/internal/analytics"
	"github.com/hpungsan/nami/internal/chat"
	"github.com/hpungsan/nami/internal/config"
	"github.com/hpungsan/nami/internal/errors"
	"github.com/hpungsan/nami/internal/ops"
	"github.com/hpungsan/nami/internal/recorder"
	"github.com/hpungsan/nami/internal/store"
	"github.com/hpungsan/nami/internal/tracker"
)

// maxAPIBody bounds the /api/chat request body.
const maxAPIBody = 64 << 10

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	st       *store.Store
	relay    *chat.Relay
	cfg      *config.Config
	renderer *Renderer
	log      *zap.Logger
	now      func() time.Time

	// The site serves a single user, so one wizard flow is kept here.
	mu   sync.Mutex
	flow recorder.Flow
}

// HandleHome handles GET /: greeting, streak and money saved.
func (h *Handlers) HandleHome(w http.ResponseWriter, r *http.Request) {
	stats, err := ops.Stats(h.st, h.cfg, ops.StatsInput{Now: h.now()})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.mu.Lock()
	recording := h.flow.Step().Active()
	h.mu.Unlock()

	h.renderer.renderPage(w, r, "home", HomePageData{
		PageData:   h.renderer.page("ホーム", "home"),
		Nickname:   stats.Nickname,
		StreakDays: stats.StreakDays,
		TotalSaved: stats.TotalSaved,
		Recording:  recording,
	})
}

// --- Urge wizard ---

// HandleUrge handles GET /urge: the current wizard step.
func (h *Handlers) HandleUrge(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	f := h.flow
	h.mu.Unlock()

	if !f.Step().Active() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.renderUrge(w, r, f)
}

// HandleUrgeStart handles POST /urge/start: begin a new record.
// An unfinished draft is discarded.
func (h *Handlers) HandleUrgeStart(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.flow = recorder.Start(h.now())
	h.mu.Unlock()
	h.redirect(w, r, "/urge")
}

// HandleUrgeTrigger handles POST /urge/triggers/{trigger}: toggle one trigger.
// The strength slider is submitted with the same form and applied first.
func (h *Handlers) HandleUrgeTrigger(w http.ResponseWriter, r *http.Request) {
	t, err := tracker.ParseTrigger(r.PathValue("trigger"))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest(err.Error()))
		return
	}
	h.advance(w, r, func(f recorder.Flow) (recorder.Flow, error) {
		f, err := h.applyStrength(f, r)
		if err != nil {
			return f, err
		}
		return f.ToggleTrigger(t)
	})
}

// HandleUrgeNext handles POST /urge/next: strength and triggers are done.
func (h *Handlers) HandleUrgeNext(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, func(f recorder.Flow) (recorder.Flow, error) {
		f, err := h.applyStrength(f, r)
		if err != nil {
			return f, err
		}
		return f.Next()
	})
}

// HandleUrgeStrategy handles POST /urge/strategy/{id}: pick a coping strategy.
func (h *Handlers) HandleUrgeStrategy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.advance(w, r, func(f recorder.Flow) (recorder.Flow, error) {
		return f.SelectStrategy(id)
	})
}

// HandleUrgeSkip handles POST /urge/skip: continue without a strategy.
func (h *Handlers) HandleUrgeSkip(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, recorder.Flow.SkipStrategy)
}

// HandleUrgeComplete handles POST /urge/complete: save the record.
func (h *Handlers) HandleUrgeComplete(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	h.mu.Lock()
	f, err := h.flow.SetSavedAmount(r.FormValue("saved_amount"))
	if err == nil {
		f, err = f.SetMemo(r.FormValue("memo"))
	}
	if err == nil {
		f, err = f.SetEffectiveness(parseIntForm(r, "effectiveness", 0))
	}
	var event *tracker.UrgeEvent
	if err == nil {
		f, event, err = f.Complete(h.now())
	}
	if err != nil {
		h.mu.Unlock()
		h.renderer.renderError(w, r, err)
		return
	}
	h.flow = f
	h.mu.Unlock()

	if event != nil {
		saved := h.st.AddUrgeEvent(r.Context(), *event)
		h.log.Debug("urge recorded", zap.String("id", saved.ID), zap.Int("strength", saved.Strength))
	}
	h.redirect(w, r, "/")
}

// HandleUrgeCancel handles POST /urge/cancel: discard the draft.
func (h *Handlers) HandleUrgeCancel(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	f, err := h.flow.Cancel()
	if err != nil {
		h.mu.Unlock()
		h.renderer.renderError(w, r, err)
		return
	}
	h.flow = f
	h.mu.Unlock()
	h.redirect(w, r, "/")
}

// advance applies one wizard transition under the lock and shows the
// resulting step.
func (h *Handlers) advance(w http.ResponseWriter, r *http.Request, step func(recorder.Flow) (recorder.Flow, error)) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	h.mu.Lock()
	f, err := step(h.flow)
	if err == nil {
		h.flow = f
	}
	h.mu.Unlock()

	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if r.Header.Get("HX-Request") == "true" {
		h.renderUrge(w, r, f)
		return
	}
	http.Redirect(w, r, "/urge", http.StatusSeeOther)
}

// applyStrength sets the strength when the form carries one.
func (h *Handlers) applyStrength(f recorder.Flow, r *http.Request) (recorder.Flow, error) {
	raw := r.FormValue("strength")
	if raw == "" {
		return f, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return f, errors.NewInvalidRequest("strength must be an integer")
	}
	return f.SetStrength(n)
}

func (h *Handlers) renderUrge(w http.ResponseWriter, r *http.Request, f recorder.Flow) {
	draft := f.Draft()
	options := make([]TriggerOption, 0, len(tracker.AllTriggers))
	for _, t := range tracker.AllTriggers {
		options = append(options, TriggerOption{
			ID:       t.String(),
			Label:    t.Label(),
			Selected: draft.Triggers.Has(t),
		})
	}
	h.renderer.renderPage(w, r, "urge", UrgePageData{
		PageData:   h.renderer.page("衝動の記録", "home"),
		Step:       f.Step().String(),
		Draft:      draft,
		Triggers:   options,
		Strategies: tracker.Strategies,
	})
}

// --- Mood ---

// HandleMoodForm handles GET /mood: the mood log form.
func (h *Handlers) HandleMoodForm(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, r, "mood", MoodPageData{
		PageData: h.renderer.page("気持ちの記録", "home"),
		Icons:    tracker.MoodIcons,
		Colors:   tracker.MoodColors,
	})
}

// HandleMoodCreate handles POST /mood: save a mood log.
func (h *Handlers) HandleMoodCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	input := ops.LogMoodInput{
		MoodIcon:      r.FormValue("mood_icon"),
		BodySensation: r.FormValue("body_sensation"),
		Color:         r.FormValue("color"),
		Memo:          r.FormValue("memo"),
		Timestamp:     h.now(),
	}
	if raw := r.FormValue("strength"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("strength must be an integer"))
			return
		}
		input.Strength = &n
	}

	if _, err := ops.LogMood(r.Context(), h.st, input); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.redirect(w, r, "/history")
}

// --- History and analytics ---

// HandleHistory handles GET /history: urges and moods, newest first.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	result, err := ops.History(h.st, ops.HistoryInput{
		Kind:   kind,
		Limit:  parseIntParam(r, "limit", 20),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "history", HistoryPageData{
		PageData:   h.renderer.page("履歴", "history"),
		Items:      result.Items,
		Pagination: result.Pagination,
		Kind:       kind,
	})
}

// HandleAnalytics handles GET /analytics: triggers, heatmap and trend.
func (h *Handlers) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	stats, err := ops.Stats(h.st, h.cfg, ops.StatsInput{Now: h.now()})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "analytics", AnalyticsPageData{
		PageData:  h.renderer.page("分析", "analytics"),
		Report:    stats.Report,
		DayLabels: analytics.DayLabels,
		Slots:     analytics.SlotLabels,
	})
}

// --- Chat ---

// HandleChat handles GET /chat: the conversation so far.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	history := ops.ChatHistory(h.st, ops.ChatHistoryInput{
		Limit:  ops.MaxListLimit,
		Offset: parseIntParam(r, "offset", 0),
	})

	lines := make([]ChatLine, 0, len(history.Items))
	for _, m := range history.Items {
		line := ChatLine{Assistant: m.Role == tracker.RoleAssistant, Timestamp: m.Timestamp}
		if line.Assistant {
			line.HTML = renderMarkdown(m.Text)
		} else {
			line.HTML = renderPlain(m.Text)
		}
		lines = append(lines, line)
	}

	h.renderer.renderPage(w, r, "chat", ChatPageData{
		PageData: h.renderer.page("AI相談", "chat"),
		Messages: lines,
		Busy:     h.relay.Busy(),
	})
}

// HandleChatSend handles POST /chat: relay one message to the assistant.
func (h *Handlers) HandleChatSend(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	if _, err := ops.SendChat(r.Context(), h.relay, ops.SendChatInput{Message: r.FormValue("message")}); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.redirect(w, r, "/chat")
}

// apiChatRequest is the body of POST /api/chat.
type apiChatRequest struct {
	UserInput string `json:"userInput"`
}

// HandleAPIChat handles POST /api/chat: a stateless single-turn proxy.
func (h *Handlers) HandleAPIChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		renderJSON(w, http.StatusMethodNotAllowed, map[string]string{
			"error": "Method " + r.Method + " Not Allowed",
		})
		return
	}

	var req apiChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxAPIBody)).Decode(&req); err != nil && !stderrors.Is(err, io.EOF) {
		renderJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.UserInput) == "" {
		renderJSON(w, http.StatusBadRequest, map[string]string{"error": "userInput is required"})
		return
	}

	reply, err := h.relay.Ask(r.Context(), req.UserInput)
	if err != nil {
		if stderrors.Is(err, chat.ErrNoGenerator) {
			h.log.Error("assistant API key is not set", zap.String("env", h.cfg.ChatAPIKeyEnv))
			renderJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "AI service is not configured correctly.",
			})
			return
		}
		h.log.Warn("assistant proxy request failed", zap.Error(err))
		renderJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "An error occurred while communicating with the AI service.",
		})
		return
	}
	renderJSON(w, http.StatusOK, map[string]string{"response": reply})
}

// --- Settings and SOS ---

// HandleSettings handles GET /settings.
func (h *Handlers) HandleSettings(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, r, "settings", SettingsPageData{
		PageData: h.renderer.page("設定", "settings"),
		Nickname: ops.GetSettings(h.st).Settings.Nickname,
		Timezone: h.cfg.Timezone,
	})
}

// HandleSettingsUpdate handles POST /settings: change the nickname.
func (h *Handlers) HandleSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	if _, err := ops.UpdateSettings(r.Context(), h.st, ops.UpdateSettingsInput{Nickname: r.FormValue("nickname")}); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.redirect(w, r, "/settings")
}

// HandleSOS handles GET /sos: crisis resources.
func (h *Handlers) HandleSOS(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, r, "sos", h.renderer.page("SOS", "settings"))
}

// redirect sends the client to url after a successful POST.
func (h *Handlers) redirect(w http.ResponseWriter, r *http.Request, url string) {
	// HTMX request: redirect via HX-Redirect header
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", url)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseIntForm parses an integer form value with a default value.
func parseIntForm(r *http.Request, name string, defaultVal int) int {
	v, err := strconv.Atoi(r.FormValue(name))
	if err != nil {
		return defaultVal
	}
	return v
}
