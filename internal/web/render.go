package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"io/fs"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/hpungsan/nami/internal/analytics"
	"github.com/hpungsan/nami/internal/errors"
	"github.com/hpungsan/nami/internal/ops"
	"github.com/hpungsan/nami/internal/recorder"
	"github.com/hpungsan/nami/internal/tracker"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "home", "history", "analytics", "chat", "settings"
}

// HomePageData is the template data for the home page.
type HomePageData struct {
	PageData
	Nickname   string
	StreakDays int
	TotalSaved float64
	Recording  bool
}

// TriggerOption is one toggle button of the urge wizard.
type TriggerOption struct {
	ID       string
	Label    string
	Selected bool
}

// UrgePageData is the template data for the urge wizard.
type UrgePageData struct {
	PageData
	Step       string
	Draft      recorder.Draft
	Triggers   []TriggerOption
	Strategies []tracker.Strategy
}

// MoodPageData is the template data for the mood form.
type MoodPageData struct {
	PageData
	Icons  []string
	Colors []string
}

// HistoryPageData is the template data for the history page.
type HistoryPageData struct {
	PageData
	Items      []analytics.TimelineEntry
	Pagination ops.Pagination
	Kind       string
}

// AnalyticsPageData is the template data for the analytics page.
type AnalyticsPageData struct {
	PageData
	Report    analytics.Report
	DayLabels [7]string
	Slots     [4]string
}

// ChatPageData is the template data for the assistant page.
type ChatPageData struct {
	PageData
	Messages []ChatLine
	Busy     bool
}

// ChatLine is one rendered conversation entry.
type ChatLine struct {
	Assistant bool
	HTML      template.HTML
	Timestamp time.Time
}

// SettingsPageData is the template data for the settings page.
type SettingsPageData struct {
	PageData
	Nickname string
	Timezone string
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	log       *zap.Logger
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
// Times are displayed in loc.
func NewRenderer(templateFS fs.FS, version string, loc *time.Location, log *zap.Logger) *Renderer {
	if loc == nil {
		loc = time.Local
	}
	funcMap := template.FuncMap{
		"add":          func(a, b int) int { return a + b },
		"sub":          func(a, b int) int { return a - b },
		"formatTime":   func(t time.Time) string { return formatTime(t, loc) },
		"formatAmount": formatAmount,
		"heatLevel":    heatLevel,
		"barWidth":     barWidth,
		"signed":       signed,
	}

	// Parse layout as the base template
	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"home":      "home.html",
		"urge":      "urge.html",
		"mood":      "mood.html",
		"history":   "history.html",
		"analytics": "analytics.html",
		"chat":      "chat.html",
		"settings":  "settings.html",
		"sos":       "sos.html",
		"error":     "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
		log:       log,
	}
}

// page builds the common page fields.
func (r *Renderer) page(title, nav string) PageData {
	return PageData{Title: title, Version: r.version, Nav: nav}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.renderPageStatus(w, req, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
// For HTMX requests, only the "content" block is rendered to avoid duplicating the layout.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	block := "layout"
	if req != nil && req.Header.Get("HX-Request") == "true" {
		block = "content"
	}
	r.renderBlock(w, status, name, block, data)
}

// renderBlock renders a specific named block from a page template.
func (r *Renderer) renderBlock(w http.ResponseWriter, status int, page, block string, data any) {
	t, ok := r.templates[page]
	if !ok {
		r.log.Error("template not found", zap.String("template", page))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, block, data); err != nil {
		r.log.Error("template execution failed", zap.String("template", page), zap.String("block", block), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	var nErr *errors.NamiError
	if !stderrors.As(err, &nErr) {
		r.log.Error("unhandled error", zap.Error(err))
		nErr = errors.NewInternal(nil)
	}

	status := nErr.Status
	message := nErr.Message

	// HTMX request: return HTML fragment
	if req.Header.Get("HX-Request") == "true" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, `<div class="error-message">%s</div>`, template.HTMLEscapeString(message))
		return
	}

	// JSON request
	if strings.Contains(req.Header.Get("Accept"), "application/json") {
		renderJSON(w, status, map[string]any{
			"error": map[string]any{
				"code":    string(nErr.Code),
				"message": message,
				"status":  status,
			},
		})
		return
	}

	// Full error page
	r.renderPageStatus(w, req, status, "error", ErrorPageData{
		PageData:   r.page(fmt.Sprintf("Error %d", status), ""),
		StatusCode: status,
		Message:    message,
	})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark.
// Raw HTML in the source is not passed through.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// renderPlain escapes text and keeps its line breaks.
func renderPlain(s string) template.HTML {
	return template.HTML(strings.ReplaceAll(template.HTMLEscapeString(s), "\n", "<br>"))
}

// formatTime formats t as "2006/01/02 15:04" in loc.
func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format("2006/01/02 15:04")
}

// formatAmount formats a yen amount with comma thousands separators.
// Fractions are rounded to the nearest yen.
func formatAmount(v float64) string {
	n := int64(math.Round(v))
	if n < 0 {
		return "-" + formatAmount(-v)
	}
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// heatLevel scales a heatmap cell to a 0..4 shade.
func heatLevel(count, maxCount int) int {
	if count <= 0 || maxCount <= 0 {
		return 0
	}
	if count >= maxCount {
		return 4
	}
	return 1 + 3*(count-1)/max(1, maxCount-1)
}

// barWidth returns count as a percentage of total, for chart bars.
func barWidth(count, total int) int {
	if total <= 0 {
		return 0
	}
	return count * 100 / total
}

// signed renders an effectiveness score with an explicit sign.
func signed(n int) string {
	if n > 0 {
		return "+" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
