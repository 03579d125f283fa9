// store.go implements the process-wide audit trail store. Entries are
// prepended (most-recent-first), capped in memory, and snapshotted to the
// durable store after every mutation. Queries are pure reads over the
// in-memory sequence. Persistence, shipping, and archiving are fire-and-forget:
// a failure is logged and counted, never surfaced to the caller, because the
// in-memory trail is authoritative for the life of the process.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meddev-qms/meddev-qms/internal/safego"
	"github.com/meddev-qms/meddev-qms/internal/snapshot"
	"github.com/meddev-qms/meddev-qms/internal/telemetry"
)

const (
	// DefaultMaxEntries caps the in-memory trail; the oldest entries beyond
	// the cap are evicted.
	DefaultMaxEntries = 10000
	// DefaultSnapshotMaxEntries caps the persisted snapshot document.
	DefaultSnapshotMaxEntries = 5000

	// SnapshotKey is the durable-store key for the trail document. It is a
	// separate document from the compliance state snapshot.
	SnapshotKey = "audit-trail"
)

// ErrInvalidEntityType is returned when LogAction is called with an entity
// type outside the closed set.
var ErrInvalidEntityType = errors.New("audit: invalid entity type")

// Archiver receives each logged entry for long-term retention, typically the
// database archive repository. Archive failures are counted and logged but do
// not fail the logging call.
type Archiver interface {
	Archive(ctx context.Context, e Entry) error
}

// TrailStore is the process-wide audit trail. Safe for concurrent use.
type TrailStore struct {
	mu          sync.RWMutex
	entries     []Entry // most-recent-first
	recording   bool
	maxEntries  int
	snapshotMax int

	store    snapshot.Store // nil disables persistence
	shipper  Shipper        // nil disables shipping
	archiver Archiver       // nil disables archiving
	clock    func() time.Time
	newID    func() string
}

// Option customises a TrailStore.
type Option func(*TrailStore)

// WithClock overrides the timestamp source, used by tests and the retention
// job's cutoff arithmetic.
func WithClock(clock func() time.Time) Option {
	return func(s *TrailStore) { s.clock = clock }
}

// WithIDGenerator overrides entry ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *TrailStore) { s.newID = newID }
}

// WithCaps overrides the in-memory and snapshot entry caps.
func WithCaps(maxEntries, snapshotMax int) Option {
	return func(s *TrailStore) {
		if maxEntries > 0 {
			s.maxEntries = maxEntries
		}
		if snapshotMax > 0 {
			s.snapshotMax = snapshotMax
		}
	}
}

// WithShipper routes every logged entry to an external destination.
func WithShipper(sh Shipper) Option {
	return func(s *TrailStore) { s.shipper = sh }
}

// WithArchiver routes every logged entry to the long-term archive.
func WithArchiver(a Archiver) Option {
	return func(s *TrailStore) { s.archiver = a }
}

// WithRecording sets the initial recording state.
func WithRecording(enabled bool) Option {
	return func(s *TrailStore) { s.recording = enabled }
}

// NewTrailStore builds a trail store. store may be nil to disable snapshot
// persistence (tests, ephemeral deployments).
func NewTrailStore(store snapshot.Store, opts ...Option) *TrailStore {
	s := &TrailStore{
		recording:   true,
		maxEntries:  DefaultMaxEntries,
		snapshotMax: DefaultSnapshotMaxEntries,
		store:       store,
		clock:       time.Now,
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// trailDocument is the persisted snapshot shape.
type trailDocument struct {
	Entries     []Entry `json:"entries"`
	IsRecording bool    `json:"is_recording"`
}

// Rehydrate loads the persisted trail document, replacing in-memory state.
// A missing document leaves the store empty; that is the normal first boot.
func (s *TrailStore) Rehydrate(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	data, ok, err := s.store.Load(ctx, SnapshotKey)
	if err != nil {
		return fmt.Errorf("audit: loading trail snapshot: %w", err)
	}
	if !ok {
		return nil
	}
	var doc trailDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("audit: decoding trail snapshot: %w", err)
	}

	s.mu.Lock()
	s.entries = doc.Entries
	s.recording = doc.IsRecording
	s.mu.Unlock()

	slog.Info("audit trail rehydrated", "entries", len(doc.Entries), "recording", doc.IsRecording)
	return nil
}

// LogAction records an entry in the trail. The store assigns the ID,
// timestamp, and chain hash. When recording is disabled the call is a no-op
// and the returned entry is the zero value. Entries with an unknown entity
// type are rejected.
func (s *TrailStore) LogAction(e Entry) (Entry, error) {
	if !ValidEntityTypes[e.EntityType] {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidEntityType, e.EntityType)
	}

	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return Entry{}, nil
	}

	e.ID = s.newID()
	e.Timestamp = s.clock()
	if len(s.entries) > 0 {
		e.PreviousHash = HashEntry(s.entries[0])
	} else {
		e.PreviousHash = ""
	}

	s.entries = append([]Entry{e}, s.entries...)
	if len(s.entries) > s.maxEntries {
		s.entries = s.entries[:s.maxEntries]
	}
	s.persistLocked()
	s.mu.Unlock()

	telemetry.AuditEntriesLoggedTotal.Inc()
	s.dispatch(e)
	return e, nil
}

// dispatch ships and archives an entry in the background.
func (s *TrailStore) dispatch(e Entry) {
	if s.shipper != nil {
		safego.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.shipper.Ship(ctx, &e); err != nil {
				slog.Error("audit: shipping entry failed", "entry_id", e.ID, "error", err)
			}
		})
	}
	if s.archiver != nil {
		safego.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.archiver.Archive(ctx, e); err != nil {
				telemetry.AuditArchiveFailuresTotal.Inc()
				slog.Error("audit: archiving entry failed", "entry_id", e.ID, "error", err)
			}
		})
	}
}

// EntriesByEntity returns all entries for one entity, most-recent-first.
func (s *TrailStore) EntriesByEntity(t EntityType, id string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0)
	for _, e := range s.entries {
		if e.EntityType == t && e.EntityID == id {
			out = append(out, e)
		}
	}
	return out
}

// EntriesByUser returns all entries recorded for a user, most-recent-first.
func (s *TrailStore) EntriesByUser(user string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0)
	for _, e := range s.entries {
		if e.User == user {
			out = append(out, e)
		}
	}
	return out
}

// EntriesByDateRange returns entries with start <= timestamp <= end,
// most-recent-first.
func (s *TrailStore) EntriesByDateRange(start, end time.Time) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0)
	for _, e := range s.entries {
		if !e.Timestamp.Before(start) && !e.Timestamp.After(end) {
			out = append(out, e)
		}
	}
	return out
}

// RecentEntries returns the limit most recent entries.
func (s *TrailStore) RecentEntries(limit int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]Entry, limit)
	copy(out, s.entries[:limit])
	return out
}

// Entries returns a copy of the full in-memory trail, most-recent-first.
func (s *TrailStore) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of in-memory entries.
func (s *TrailStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// ClearOldEntries removes every entry older than now minus daysToKeep days
// and returns the number removed. The purge is irreversible and is the only
// operation that deletes trail entries.
func (s *TrailStore) ClearOldEntries(daysToKeep int) int {
	s.mu.Lock()
	cutoff := s.clock().AddDate(0, 0, -daysToKeep)
	kept := s.entries[:0:0]
	for _, e := range s.entries {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(s.entries) - len(kept)
	s.entries = kept
	if removed > 0 {
		s.persistLocked()
	}
	s.mu.Unlock()

	if removed > 0 {
		telemetry.AuditEntriesPurgedTotal.Add(float64(removed))
		slog.Info("audit trail purged", "removed", removed, "days_to_keep", daysToKeep)
	}
	return removed
}

// SetRecording toggles whether LogAction records anything. Existing entries
// are unaffected.
func (s *TrailStore) SetRecording(enabled bool) {
	s.mu.Lock()
	s.recording = enabled
	s.persistLocked()
	s.mu.Unlock()
}

// IsRecording reports the current recording state.
func (s *TrailStore) IsRecording() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recording
}

// Verify checks the hash chain over the retained entries.
func (s *TrailStore) Verify() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return VerifyChain(s.entries)
}

// persistLocked snapshots the trail (entries capped to snapshotMax) in the
// background. Must be called with the write lock held; the document is
// marshalled under the lock so the saved state is exactly the state at the
// time of the mutation.
func (s *TrailStore) persistLocked() {
	if s.store == nil {
		return
	}
	entries := s.entries
	if len(entries) > s.snapshotMax {
		entries = entries[:s.snapshotMax]
	}
	doc := trailDocument{Entries: entries, IsRecording: s.recording}
	data, err := json.Marshal(doc)
	if err != nil {
		telemetry.SnapshotSaveFailuresTotal.WithLabelValues(SnapshotKey).Inc()
		slog.Error("audit: encoding trail snapshot failed", "error", err)
		return
	}
	store := s.store
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Save(ctx, SnapshotKey, data); err != nil {
			telemetry.SnapshotSaveFailuresTotal.WithLabelValues(SnapshotKey).Inc()
			slog.Error("audit: saving trail snapshot failed", "error", err)
		}
	})
}
