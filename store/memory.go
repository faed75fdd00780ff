package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/sharedrop/models"
)

// MemoryOptions configures a MemoryStore. Zero values fall back to the defaults.
type MemoryOptions struct {
	FileTTL       time.Duration
	IdleGrace     time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
}

type memoryRoom struct {
	files      []models.FileRecord
	createdAt  time.Time
	emptySince time.Time // zero while the room holds files
}

// MemoryStore keeps rooms in process memory. Lists are replaced, never mutated
// in place, so a slice handed out by ListActive stays valid.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*memoryRoom

	fileTTL       time.Duration
	idleGrace     time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	log           *zap.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts MemoryOptions, log *zap.Logger) *MemoryStore {
	if opts.FileTTL <= 0 {
		opts.FileTTL = DefaultFileTTL
	}
	if opts.IdleGrace <= 0 {
		opts.IdleGrace = DefaultIdleGrace
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MemoryStore{
		rooms:         make(map[string]*memoryRoom),
		fileTTL:       opts.FileTTL,
		idleGrace:     opts.IdleGrace,
		sweepInterval: opts.SweepInterval,
		now:           opts.Now,
		log:           log,
	}
}

func (m *MemoryStore) ListActive(_ context.Context, sessionID string) []models.FileRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[sessionID]
	if !ok {
		return []models.FileRecord{}
	}
	return activeOnly(room.files, m.now())
}

func (m *MemoryStore) Append(_ context.Context, sessionID string, rec models.FileRecord) (models.FileRecord, error) {
	if err := validate(sessionID, rec); err != nil {
		return models.FileRecord{}, err
	}
	now := m.now()
	rec = rec.Stamp(now, m.fileTTL)

	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[sessionID]
	if !ok {
		room = &memoryRoom{createdAt: now}
		m.rooms[sessionID] = room
	}
	room.files = append(withoutPublicID(room.files, rec.PublicID), rec)
	room.emptySince = time.Time{}
	return rec, nil
}

func (m *MemoryStore) Remove(_ context.Context, sessionID, publicID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[sessionID]
	if !ok {
		return nil
	}
	room.files = withoutPublicID(room.files, publicID)
	if len(room.files) == 0 && room.emptySince.IsZero() {
		room.emptySince = m.now()
	}
	return nil
}

func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{Rooms: len(m.rooms)}
	for _, room := range m.rooms {
		st.Files += len(room.files)
	}
	return st, nil
}

// Sweep drops expired records and rooms that have been empty for longer than the
// idle grace period. It returns how many of each were removed.
func (m *MemoryStore) Sweep() (files, rooms int) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, room := range m.rooms {
		live := activeOnly(room.files, now)
		files += len(room.files) - len(live)
		room.files = live
		if len(live) > 0 {
			continue
		}
		if room.emptySince.IsZero() {
			room.emptySince = now
		}
		if now.Sub(room.emptySince) > m.idleGrace {
			delete(m.rooms, id)
			rooms++
		}
	}
	return files, rooms
}

// Run sweeps every SweepInterval until ctx is done. Timers armed by the expiry
// scheduler do not survive a restart; the sweep keeps the view correct anyway.
func (m *MemoryStore) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if files, rooms := m.Sweep(); files > 0 || rooms > 0 {
				m.log.Debug("room sweep", zap.Int("expired_files", files), zap.Int("dropped_rooms", rooms))
			}
		}
	}
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.rooms = make(map[string]*memoryRoom)
	m.mu.Unlock()
	return nil
}
