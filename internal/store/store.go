// Package store persists the AppData aggregate as a single JSON snapshot.
//
// Several processes (the web UI, the MCP server, one-shot CLI commands) may
// share one Backend. Every mutation re-reads the snapshot, applies the change
// to the latest version and writes it back with a compare-and-swap, retrying
// when another writer got there first. A failed write is logged and counted
// but never returned to the caller: the in-memory state keeps the mutation
// and the next successful write persists it.
package store

import (
	"context"
	"crypto/rand"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/nami/internal/metrics"
	"github.com/hpungsan/nami/internal/tracker"
)

// DataKey is the fixed logical key of the snapshot.
const DataKey = "namiNaviData"

// corruptPrefix prefixes the keys unreadable snapshots are copied to.
const corruptPrefix = DataKey + ".corrupt."

// maxSwapAttempts bounds the retries of one mutation under contention.
const maxSwapAttempts = 5

// Store owns the in-memory AppData and writes it through to a Backend.
type Store struct {
	mu       sync.Mutex
	backend  Backend
	log      *zap.Logger
	metrics  *metrics.Collector
	now      func() time.Time
	entropy  io.Reader
	nickname string
	data     tracker.AppData
	version  int64 // backend version data was read at or written as
	dirty    bool  // data holds changes the backend does not have
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards output.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithDefaultNickname sets the nickname used when no settings exist.
func WithDefaultNickname(nickname string) Option {
	return func(s *Store) { s.nickname = nickname }
}

// New creates a store over backend holding default data. Call Load to read
// the persisted snapshot.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		log:     zap.NewNop(),
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.data = tracker.DefaultAppData(s.nickname)
	return s
}

// Open creates a store and loads the persisted snapshot.
func Open(ctx context.Context, backend Backend, opts ...Option) *Store {
	s := New(backend, opts...)
	s.Load(ctx)
	return s
}

// Load reads the snapshot into memory and returns a copy of it.
//
// A missing snapshot yields defaults. A snapshot missing fields is filled
// from defaults. A snapshot that cannot be decoded yields defaults, and the
// raw bytes are copied to a backup key so the next save does not destroy
// them. Load never fails.
func (s *Store) Load(ctx context.Context) tracker.AppData {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data, s.version = s.read(ctx)
	s.dirty = false
	return s.data.Clone()
}

// read returns the stored snapshot and its version. Unreadable data yields
// defaults at the stored version, so the next write replaces it.
func (s *Store) read(ctx context.Context) (tracker.AppData, int64) {
	defaults := tracker.DefaultAppData(s.nickname)

	raw, version, err := s.backend.GetVersion(ctx, DataKey)
	if err != nil {
		s.log.Warn("failed to read snapshot, using defaults", zap.Error(err))
		return defaults, s.version
	}
	if raw == nil {
		return defaults, version
	}

	data, err := decode(raw, defaults.Settings.Nickname)
	if err != nil {
		s.log.Warn("snapshot is malformed, using defaults", zap.Error(err))
		s.backup(ctx, raw)
		return defaults, version
	}
	return data, version
}

// refresh pulls in writes made through the backend by other stores. Local
// changes that failed to persist are carried over onto the newer snapshot.
// Must be called with s.mu held.
func (s *Store) refresh(ctx context.Context) {
	raw, version, err := s.backend.GetVersion(ctx, DataKey)
	if err != nil {
		s.log.Warn("failed to check snapshot version", zap.Error(err))
		return
	}
	if version == s.version {
		return
	}

	remote := tracker.DefaultAppData(s.nickname)
	if raw != nil {
		decoded, err := decode(raw, remote.Settings.Nickname)
		if err != nil {
			s.log.Warn("snapshot is malformed, keeping memory", zap.Error(err))
			s.backup(ctx, raw)
			s.version = version
			s.dirty = true
			return
		}
		remote = decoded
	}
	if s.dirty {
		remote = carryOver(remote, s.data)
	}
	s.data, s.version = remote, version
}

// carryOver appends the records of local whose ids remote lacks, in local
// order, and keeps local settings.
func carryOver(remote, local tracker.AppData) tracker.AppData {
	urges := idSet(remote.UrgeEvents, func(e tracker.UrgeEvent) string { return e.ID })
	for _, e := range local.UrgeEvents {
		if !urges[e.ID] {
			remote.UrgeEvents = append(remote.UrgeEvents, e.Clone())
		}
	}
	moods := idSet(remote.MoodLogs, func(m tracker.MoodLog) string { return m.ID })
	for _, m := range local.MoodLogs {
		if !moods[m.ID] {
			remote.MoodLogs = append(remote.MoodLogs, m)
		}
	}
	chats := idSet(remote.AIChatHistory, func(c tracker.ChatMessage) string { return c.ID })
	for _, c := range local.AIChatHistory {
		if !chats[c.ID] {
			remote.AIChatHistory = append(remote.AIChatHistory, c)
		}
	}
	remote.Settings = local.Settings
	return remote
}

func idSet[T any](items []T, id func(T) string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[id(it)] = true
	}
	return set
}

func decode(raw []byte, nickname string) (tracker.AppData, error) {
	data := tracker.DefaultAppData(nickname)
	if err := json.Unmarshal(raw, &data); err != nil {
		return tracker.AppData{}, err
	}
	if strings.TrimSpace(data.Settings.Nickname) == "" {
		data.Settings.Nickname = nickname
	}
	data.Normalize()
	return data, nil
}

func (s *Store) backup(ctx context.Context, raw []byte) {
	key := fmt.Sprintf("%s%d", corruptPrefix, s.now().Unix())
	if err := s.backend.Put(ctx, key, raw); err != nil {
		s.log.Error("failed to back up malformed snapshot", zap.String("key", key), zap.Error(err))
		return
	}
	s.log.Info("malformed snapshot backed up", zap.String("key", key))
}

// Save replaces the whole aggregate and writes it. Saving the same data
// twice leaves the backend in the same state.
func (s *Store) Save(ctx context.Context, data tracker.AppData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data = data.Clone()
	return s.commit(ctx, func(d *tracker.AppData) { *d = data.Clone() })
}

// Snapshot returns a deep copy of the in-memory aggregate.
// Writes by other processes are picked up first.
func (s *Store) Snapshot() tracker.AppData {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh(context.Background())
	return s.data.Clone()
}

// AddUrgeEvent assigns an id, appends the event and persists.
func (s *Store) AddUrgeEvent(ctx context.Context, e tracker.UrgeEvent) tracker.UrgeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	e = s.prepareUrge(e)
	s.persist(ctx, func(d *tracker.AppData) { d.UrgeEvents = append(d.UrgeEvents, e.Clone()) })
	s.metrics.UrgeRecorded()
	return e.Clone()
}

// AddMoodLog assigns an id, appends the log and persists.
func (s *Store) AddMoodLog(ctx context.Context, m tracker.MoodLog) tracker.MoodLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	m = s.prepareMood(m)
	s.persist(ctx, func(d *tracker.AppData) { d.MoodLogs = append(d.MoodLogs, m) })
	s.metrics.MoodLogged()
	return m
}

// AddChatMessage assigns an id, appends the message and persists.
func (s *Store) AddChatMessage(ctx context.Context, m tracker.ChatMessage) tracker.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	m = s.prepareChat(m)
	s.persist(ctx, func(d *tracker.AppData) { d.AIChatHistory = append(d.AIChatHistory, m) })
	return m
}

// ChatHistory returns a copy of the conversation.
func (s *Store) ChatHistory() []tracker.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh(context.Background())
	return append([]tracker.ChatMessage(nil), s.data.AIChatHistory...)
}

// UpdateSettings applies fn to the settings and persists. An empty
// nickname after fn falls back to the default.
func (s *Store) UpdateSettings(ctx context.Context, fn func(*tracker.Settings)) tracker.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	var settings tracker.Settings
	s.persist(ctx, func(d *tracker.AppData) {
		settings = d.Settings
		fn(&settings)
		settings.Nickname = strings.TrimSpace(settings.Nickname)
		if settings.Nickname == "" {
			settings.Nickname = tracker.DefaultAppData(s.nickname).Settings.Nickname
		}
		d.Settings = settings
	})
	return settings
}

// MergeResult counts records appended by Merge.
type MergeResult struct {
	UrgeEvents   int `json:"urge_events"`
	MoodLogs     int `json:"mood_logs"`
	ChatMessages int `json:"chat_messages"`
}

// Merge appends every record of in with fresh ids, keeping current
// settings, and persists once.
func (s *Store) Merge(ctx context.Context, in tracker.AppData) MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	add := in.Clone()
	for i := range add.UrgeEvents {
		add.UrgeEvents[i].ID = ""
		add.UrgeEvents[i] = s.prepareUrge(add.UrgeEvents[i])
	}
	for i := range add.MoodLogs {
		add.MoodLogs[i].ID = ""
		add.MoodLogs[i] = s.prepareMood(add.MoodLogs[i])
	}
	for i := range add.AIChatHistory {
		add.AIChatHistory[i].ID = ""
		add.AIChatHistory[i] = s.prepareChat(add.AIChatHistory[i])
	}
	s.persist(ctx, func(d *tracker.AppData) {
		for _, e := range add.UrgeEvents {
			d.UrgeEvents = append(d.UrgeEvents, e.Clone())
		}
		d.MoodLogs = append(d.MoodLogs, add.MoodLogs...)
		d.AIChatHistory = append(d.AIChatHistory, add.AIChatHistory...)
	})

	return MergeResult{
		UrgeEvents:   len(in.UrgeEvents),
		MoodLogs:     len(in.MoodLogs),
		ChatMessages: len(in.AIChatHistory),
	}
}

// Replace overwrites the aggregate with data and persists. Records without
// an id get one. Unlike Save, a write failure is only logged.
func (s *Store) Replace(ctx context.Context, data tracker.AppData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data = data.Clone()
	for i := range data.UrgeEvents {
		data.UrgeEvents[i] = s.prepareUrge(data.UrgeEvents[i])
	}
	for i := range data.MoodLogs {
		data.MoodLogs[i] = s.prepareMood(data.MoodLogs[i])
	}
	for i := range data.AIChatHistory {
		data.AIChatHistory[i] = s.prepareChat(data.AIChatHistory[i])
	}
	if strings.TrimSpace(data.Settings.Nickname) == "" {
		data.Settings.Nickname = tracker.DefaultAppData(s.nickname).Settings.Nickname
	}
	s.persist(ctx, func(d *tracker.AppData) { *d = data.Clone() })
}

func (s *Store) prepareUrge(e tracker.UrgeEvent) tracker.UrgeEvent {
	if e.ID == "" {
		e.ID = s.newID()
	}
	if e.StartTime.IsZero() {
		e.StartTime = s.now()
	}
	if e.EndTime.Before(e.StartTime) {
		e.EndTime = e.StartTime
	}
	e.StartTime = e.StartTime.UTC()
	e.EndTime = e.EndTime.UTC()
	if e.UsedStrategies == nil {
		e.UsedStrategies = []tracker.StrategyKind{}
	}
	return e
}

func (s *Store) prepareMood(m tracker.MoodLog) tracker.MoodLog {
	if m.ID == "" {
		m.ID = s.newID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now()
	}
	m.Timestamp = m.Timestamp.UTC()
	return m
}

func (s *Store) prepareChat(m tracker.ChatMessage) tracker.ChatMessage {
	if m.ID == "" {
		m.ID = s.newID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now()
	}
	m.Timestamp = m.Timestamp.UTC()
	return m
}

// newID must be called with s.mu held; the monotonic entropy source is not
// safe for concurrent use.
func (s *Store) newID() string {
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

// persist commits fn, logging instead of returning errors.
func (s *Store) persist(ctx context.Context, fn func(*tracker.AppData)) {
	if err := s.commit(ctx, fn); err != nil {
		s.log.Error("failed to persist snapshot", zap.Error(err))
	}
}

// commit applies fn to the latest snapshot and swaps the result in. On a
// version conflict it re-reads and applies fn again. Whatever the outcome,
// the in-memory state ends up with fn applied. Must be called with s.mu
// held; fn may run more than once.
func (s *Store) commit(ctx context.Context, fn func(*tracker.AppData)) error {
	var err error
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		s.refresh(ctx)
		next := s.data.Clone()
		fn(&next)
		next.Normalize()

		var version int64
		version, err = s.swap(ctx, next)
		if err == nil {
			s.data, s.version, s.dirty = next, version, false
			s.metrics.StoreSave(nil)
			return nil
		}
		if !stderrors.Is(err, ErrConflict) {
			break
		}
		s.log.Debug("snapshot changed underneath, retrying", zap.Int("attempt", attempt+1))
	}

	// Keep the change in memory; refresh carries it onto the next write.
	next := s.data.Clone()
	fn(&next)
	next.Normalize()
	s.data, s.dirty = next, true
	s.metrics.StoreSave(err)
	return err
}

func (s *Store) swap(ctx context.Context, data tracker.AppData) (int64, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return 0, err
	}
	return s.backend.Swap(ctx, DataKey, raw, s.version)
}
