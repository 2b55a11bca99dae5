package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hpungsan/nami/internal/errors"
	"github.com/hpungsan/nami/internal/store"
	"github.com/hpungsan/nami/internal/tracker"
)

// ExportSchemaVersion is written to the header of every export file.
const ExportSchemaVersion = "1.0"

// RecordType tags each line of an export file.
type RecordType string

const (
	RecordTypeSettings RecordType = "settings"
	RecordTypeUrge     RecordType = "urge"
	RecordTypeMood     RecordType = "mood"
	RecordTypeChat     RecordType = "chat"
)

// ExportHeader is the first line of an export file.
type ExportHeader struct {
	NamiExport    bool   `json:"_nami_export"`
	SchemaVersion string `json:"schema_version"`
	ExportedAt    int64  `json:"exported_at"`
}

// ExportRecord is one data line of an export file. Exactly one payload
// field is set, matching Type.
type ExportRecord struct {
	Type     RecordType           `json:"_type"`
	Settings *tracker.Settings    `json:"settings,omitempty"`
	Urge     *tracker.UrgeEvent   `json:"urge,omitempty"`
	Mood     *tracker.MoodLog     `json:"mood,omitempty"`
	Chat     *tracker.ChatMessage `json:"chat,omitempty"`
}

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path string // optional, default: <exports>/<nickname>-<timestamp>.jsonl
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string            `json:"path"`
	Counts     store.MergeResult `json:"counts"`
	ExportedAt int64             `json:"exported_at"`
}

// Export writes the current snapshot to a JSONL file: a header line, the
// settings, then urge events, mood logs and chat messages in stored order.
// The file is written to a temporary name and renamed into place, so an
// existing file is left untouched on failure.
func Export(ctx context.Context, st *store.Store, policy PathPolicy, input ExportInput) (*ExportOutput, error) {
	now := time.Now()
	data := st.Snapshot()

	path := input.Path
	if path == "" {
		path = policy.DefaultExportPath(data.Settings.Nickname, now.Format("2006-01-02T150405"))
	}
	// Default paths are checked too since they embed the nickname.
	if err := policy.Check(path, PathCheckWrite); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	err := writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)

		if err := enc.Encode(ExportHeader{NamiExport: true, SchemaVersion: ExportSchemaVersion, ExportedAt: now.Unix()}); err != nil {
			return err
		}
		for _, rec := range exportRecords(data) {
			if ctx.Err() != nil {
				return errors.NewCancelled("export")
			}
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &ExportOutput{
		Path: path,
		Counts: store.MergeResult{
			UrgeEvents:   len(data.UrgeEvents),
			MoodLogs:     len(data.MoodLogs),
			ChatMessages: len(data.AIChatHistory),
		},
		ExportedAt: now.Unix(),
	}, nil
}

func exportRecords(data tracker.AppData) []ExportRecord {
	out := make([]ExportRecord, 0, 1+len(data.UrgeEvents)+len(data.MoodLogs)+len(data.AIChatHistory))
	settings := data.Settings
	out = append(out, ExportRecord{Type: RecordTypeSettings, Settings: &settings})
	for i := range data.UrgeEvents {
		out = append(out, ExportRecord{Type: RecordTypeUrge, Urge: &data.UrgeEvents[i]})
	}
	for i := range data.MoodLogs {
		out = append(out, ExportRecord{Type: RecordTypeMood, Mood: &data.MoodLogs[i]})
	}
	for i := range data.AIChatHistory {
		out = append(out, ExportRecord{Type: RecordTypeChat, Chat: &data.AIChatHistory[i]})
	}
	return out
}

// writeAtomic writes through fn into a temporary sibling of path, syncs it
// and renames it over path. NamiErrors from fn are returned unchanged.
func writeAtomic(path string, fn func(io.Writer) error) (err error) {
	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tmp := path + "." + hex.EncodeToString(suffix) + ".tmp"

	file, err := createNoFollow(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}
	defer func() {
		if file != nil {
			file.Close()
		}
		if err != nil {
			os.Remove(tmp)
		}
	}()

	w := bufio.NewWriter(file)
	if err := fn(w); err != nil {
		if _, ok := err.(*errors.NamiError); ok {
			return err
		}
		return errors.NewInternal(err)
	}
	if err := w.Flush(); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	// Windows cannot rename an open file.
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would replace a symlink's target.
	if isSymlink(path) {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	if err := os.Rename(tmp, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}
	return nil
}
