package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hpungsan/nami/internal/errors"
	"github.com/hpungsan/nami/internal/store"
	"github.com/hpungsan/nami/internal/tracker"
)

// Import limits.
const (
	MaxImportBytes = 32 << 20
	maxImportLine  = 1 << 20
)

// ImportMode controls how imported records combine with the current data.
type ImportMode string

const (
	ImportModeAppend  ImportMode = "append"  // add records with fresh ids, keep settings
	ImportModeReplace ImportMode = "replace" // swap the whole snapshot (atomic)
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     `name:"path" validate:"required"`
	Mode ImportMode `name:"mode" validate:"omitempty,oneof=append replace"` // default: append
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int               `json:"imported"`
	Skipped  int               `json:"skipped"`
	Counts   store.MergeResult `json:"counts"`
	Errors   []ImportError     `json:"errors"`
}

// ImportError describes one rejected line.
type ImportError struct {
	Line    int    `json:"line"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Import reads a JSONL export file into the store.
//
// In append mode bad lines are skipped and reported. In replace mode any bad
// line aborts the import and the store is left unchanged.
func Import(ctx context.Context, st *store.Store, policy PathPolicy, input ImportInput) (*ImportOutput, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Mode == "" {
		input.Mode = ImportModeAppend
	}
	if err := policy.Check(input.Path, PathCheckRead); err != nil {
		return nil, err
	}

	file, err := openNoFollowRead(input.Path)
	if err != nil {
		if _, ok := err.(*errors.NamiError); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if info.Size() > MaxImportBytes {
		return nil, errors.NewFileTooLarge(MaxImportBytes)
	}

	parsed, err := parseExport(ctx, file)
	if err != nil {
		return nil, err
	}

	out := &ImportOutput{Errors: parsed.errors}
	if out.Errors == nil {
		out.Errors = []ImportError{}
	}
	total := len(parsed.data.UrgeEvents) + len(parsed.data.MoodLogs) + len(parsed.data.AIChatHistory)

	switch input.Mode {
	case ImportModeReplace:
		if len(parsed.errors) > 0 {
			return out, nil
		}
		data := parsed.data
		if !parsed.hasSettings {
			data.Settings = st.Snapshot().Settings
		}
		st.Replace(ctx, data)
		out.Imported = total
		out.Counts = countsOf(data)
	default:
		out.Counts = st.Merge(ctx, parsed.data)
		out.Imported = total
		out.Skipped = len(parsed.errors)
	}
	return out, nil
}

func countsOf(d tracker.AppData) store.MergeResult {
	return store.MergeResult{
		UrgeEvents:   len(d.UrgeEvents),
		MoodLogs:     len(d.MoodLogs),
		ChatMessages: len(d.AIChatHistory),
	}
}

type parsedExport struct {
	data        tracker.AppData
	hasSettings bool
	errors      []ImportError
}

// exportLine is the union of header and record fields.
type exportLine struct {
	NamiExport    bool   `json:"_nami_export"`
	SchemaVersion string `json:"schema_version"`
	ExportRecord
}

// parseExport reads an export file. The first non-blank line must be the
// export header; a file without one is rejected before any record is kept.
func parseExport(ctx context.Context, r io.Reader) (parsedExport, error) {
	p := parsedExport{data: tracker.DefaultAppData("")}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLine)
	lineNum := 0
	sawHeader := false
	for scanner.Scan() {
		lineNum++
		if ctx.Err() != nil {
			return p, errors.NewCancelled("import")
		}
		raw := scanner.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}

		var line exportLine
		err := json.Unmarshal(raw, &line)
		if !sawHeader {
			if err != nil || !line.NamiExport {
				return p, errors.NewInvalidRequest(fmt.Sprintf("line %d: missing nami export header", lineNum))
			}
			if !strings.HasPrefix(line.SchemaVersion, "1.") {
				return p, errors.NewInvalidRequest(fmt.Sprintf("unsupported export schema version %q", line.SchemaVersion))
			}
			sawHeader = true
			continue
		}
		if err != nil {
			p.errors = append(p.errors, ImportError{Line: lineNum, Code: "PARSE_ERROR", Message: fmt.Sprintf("invalid JSON: %v", err)})
			continue
		}
		if line.NamiExport {
			p.errors = append(p.errors, ImportError{Line: lineNum, Code: "INVALID_RECORD", Message: "duplicate export header"})
			continue
		}
		if msg := p.add(line.ExportRecord); msg != "" {
			p.errors = append(p.errors, ImportError{Line: lineNum, Code: "INVALID_RECORD", Message: msg})
		}
	}
	if err := scanner.Err(); err != nil {
		if !sawHeader {
			return p, errors.NewInvalidRequest(fmt.Sprintf("failed to read export header: %v", err))
		}
		p.errors = append(p.errors, ImportError{Line: lineNum + 1, Code: "READ_ERROR", Message: fmt.Sprintf("failed to read file: %v", err)})
	}
	if !sawHeader {
		return p, errors.NewInvalidRequest("import file is empty")
	}
	return p, nil
}

// add appends rec to the parsed data, or returns why it was rejected.
func (p *parsedExport) add(rec ExportRecord) string {
	switch rec.Type {
	case RecordTypeSettings:
		if rec.Settings == nil {
			return "missing settings payload"
		}
		if strings.TrimSpace(rec.Settings.Nickname) == "" {
			return "settings nickname is empty"
		}
		p.data.Settings = *rec.Settings
		p.hasSettings = true
	case RecordTypeUrge:
		e := rec.Urge
		switch {
		case e == nil:
			return "missing urge payload"
		case e.StartTime.IsZero():
			return "urge startTime is required"
		case e.Strength < tracker.MinStrength || e.Strength > tracker.MaxStrength:
			return fmt.Sprintf("urge strength %d out of range", e.Strength)
		case e.Effectiveness < tracker.MinEffectiveness || e.Effectiveness > tracker.MaxEffectiveness:
			return fmt.Sprintf("urge effectiveness %d out of range", e.Effectiveness)
		case e.SavedAmount < 0:
			return "urge savedAmount must not be negative"
		}
		if e.EndTime.IsZero() {
			e.EndTime = e.StartTime
		}
		p.data.UrgeEvents = append(p.data.UrgeEvents, e.Clone())
	case RecordTypeMood:
		m := rec.Mood
		switch {
		case m == nil:
			return "missing mood payload"
		case m.Timestamp.IsZero():
			return "mood timestamp is required"
		case m.Strength < tracker.MinStrength || m.Strength > tracker.MaxStrength:
			return fmt.Sprintf("mood strength %d out of range", m.Strength)
		}
		p.data.MoodLogs = append(p.data.MoodLogs, *m)
	case RecordTypeChat:
		c := rec.Chat
		switch {
		case c == nil:
			return "missing chat payload"
		case !c.Role.Valid():
			return "chat role is required"
		case strings.TrimSpace(c.Text) == "":
			return "chat text is empty"
		}
		p.data.AIChatHistory = append(p.data.AIChatHistory, *c)
	default:
		return fmt.Sprintf("unknown record type %q", rec.Type)
	}
	return ""
}
