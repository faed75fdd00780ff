// Package share implements ephemeral file-share rooms: session creation, room
// membership, file announcements and timed expiry.
package share

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/sharedrop/blob"
	"github.com/cppla/sharedrop/models"
	"github.com/cppla/sharedrop/store"
)

var (
	// ErrInvalidSession is returned for malformed session identifiers.
	ErrInvalidSession = errors.New("invalid session id")
	// ErrInvalidFile is returned for announcements missing required fields.
	ErrInvalidFile = errors.New("invalid file info")
	// ErrFileTooLarge is returned for files above the upload cap.
	ErrFileTooLarge = errors.New("file exceeds upload limit")
	// ErrDuplicateFile is returned when a public ID is announced while its
	// previous announcement is still live.
	ErrDuplicateFile = errors.New("file already announced")
	// ErrFileNotFound is returned when a removal names a file the room does not hold.
	ErrFileNotFound = errors.New("file not found in room")
)

const cleanupTimeout = 10 * time.Second

// Options wires a Service. Store, Blobs and Hub are required.
type Options struct {
	Store         store.RoomStore
	Blobs         blob.Store
	Hub           *Hub
	Clock         Clock
	FileTTL       time.Duration
	MaxUploadSize int64
	Logger        *zap.Logger
	Metrics       *Metrics
}

// Service coordinates the registry, room store, hub and expiry scheduler.
type Service struct {
	store     store.RoomStore
	blobs     blob.Store
	hub       *Hub
	clock     Clock
	registry  *Registry
	scheduler *Scheduler

	fileTTL       time.Duration
	maxUploadSize int64
	log           *zap.Logger
	metrics       *Metrics

	// public IDs with an announcement in flight
	inflight sync.Map
}

// NewService builds a service and its scheduler.
func NewService(opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = RealClock
	}
	if opts.FileTTL <= 0 {
		opts.FileTTL = store.DefaultFileTTL
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = blob.MaxUploadSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Blobs == nil {
		opts.Blobs = blob.Disabled{}
	}
	s := &Service{
		store:         opts.Store,
		blobs:         opts.Blobs,
		hub:           opts.Hub,
		clock:         opts.Clock,
		registry:      NewRegistry(opts.Clock),
		fileTTL:       opts.FileTTL,
		maxUploadSize: opts.MaxUploadSize,
		log:           opts.Logger,
		metrics:       opts.Metrics,
	}
	s.scheduler = NewScheduler(opts.Clock, s.expire)
	return s
}

// Hub returns the broadcast hub.
func (s *Service) Hub() *Hub { return s.hub }

// FileTTL is how long an announced file stays visible.
func (s *Service) FileTTL() time.Duration { return s.fileTTL }

// Now is the service clock's current time.
func (s *Service) Now() time.Time { return s.clock.Now() }

// MaxUploadSize is the per-file size cap.
func (s *Service) MaxUploadSize() int64 { return s.maxUploadSize }

// CreateSession mints a new room.
func (s *Service) CreateSession() models.Session {
	sess := s.registry.Create()
	s.metrics.SessionsCreated.Inc()
	s.log.Debug("session created", zap.String("session_id", sess.SessionID))
	return sess
}

// UploadCredentials asks the blob store for one-time upload credentials.
func (s *Service) UploadCredentials(ctx context.Context, req blob.CredentialRequest) (blob.Credentials, error) {
	if req.Size > s.maxUploadSize {
		return blob.Credentials{}, ErrFileTooLarge
	}
	creds, err := s.blobs.Credentials(ctx, req)
	if err != nil {
		return blob.Credentials{}, fmt.Errorf("upload credentials: %w", err)
	}
	return creds, nil
}

// ListActive returns the live records of a room.
func (s *Service) ListActive(ctx context.Context, sessionID string) ([]models.FileRecord, error) {
	if !ValidSessionID(sessionID) {
		return nil, ErrInvalidSession
	}
	return s.store.ListActive(ctx, sessionID), nil
}

// Join subscribes p to the room, notifies the other members and sends p the
// current snapshot as existing-files. The snapshot is taken after subscribing,
// so an announcement racing the join reaches p at least once.
func (s *Service) Join(ctx context.Context, sessionID string, p *Peer) ([]models.FileRecord, error) {
	if !ValidSessionID(sessionID) {
		return nil, ErrInvalidSession
	}
	s.hub.Join(sessionID, p)
	files := s.store.ListActive(ctx, sessionID)
	s.hub.Send(p, models.Event{
		Event: models.EventExistingFiles,
		Data:  models.ExistingFiles{Files: files},
	})
	s.log.Info("peer joined room",
		zap.String("session_id", sessionID), zap.String("peer", p.Label), zap.Int("files", len(files)))
	return files, nil
}

// Leave unsubscribes p. Its files stay in the room.
func (s *Service) Leave(p *Peer) {
	if sessionID, ok := s.hub.RoomOf(p); ok {
		s.log.Info("peer left room", zap.String("session_id", sessionID), zap.String("peer", p.Label))
	}
	s.hub.Leave(p)
}

// Announce stores a newly uploaded file, arms its expiry and tells every
// other member of the room. exceptPeerID is the announcer's peer ID, or ""
// when the announcement did not come over the realtime channel.
func (s *Service) Announce(ctx context.Context, sessionID string, info models.FileInfo, peerLabel, exceptPeerID string) (models.FileRecord, error) {
	if !ValidSessionID(sessionID) {
		return models.FileRecord{}, ErrInvalidSession
	}
	rec := models.NewFileRecord(info, peerLabel)
	if rec.PublicID == "" || rec.Name == "" || rec.Size < 0 {
		return models.FileRecord{}, ErrInvalidFile
	}
	if rec.Size > s.maxUploadSize {
		return models.FileRecord{}, ErrFileTooLarge
	}

	if _, busy := s.inflight.LoadOrStore(rec.PublicID, struct{}{}); busy {
		return models.FileRecord{}, ErrDuplicateFile
	}
	defer s.inflight.Delete(rec.PublicID)
	if s.scheduler.Armed(rec.PublicID) {
		return models.FileRecord{}, ErrDuplicateFile
	}

	rec, err := s.store.Append(ctx, sessionID, rec)
	if err != nil {
		s.metrics.RoomStoreWriteErrors.Inc()
		return models.FileRecord{}, fmt.Errorf("store file record: %w", err)
	}

	// the stored deadline is authoritative; never fire before it
	if err := s.scheduler.Arm(sessionID, rec.PublicID, rec.ExpiresAt.Time().Sub(s.clock.Now())); err != nil {
		// a record without a timer would never release its blob
		if rerr := s.store.Remove(ctx, sessionID, rec.PublicID); rerr != nil {
			s.metrics.RoomStoreWriteErrors.Inc()
			s.log.Error("roll back unarmed record failed",
				zap.String("session_id", sessionID), zap.String("public_id", rec.PublicID), zap.Error(rerr))
		}
		return models.FileRecord{}, fmt.Errorf("arm expiry: %w", err)
	}

	delivered := s.hub.Publish(sessionID, models.Event{Event: models.EventFileAdded, Data: rec}, exceptPeerID)
	s.metrics.FilesAnnounced.Inc()
	s.log.Info("file announced",
		zap.String("session_id", sessionID),
		zap.String("public_id", rec.PublicID),
		zap.String("uploaded_by", rec.UploadedBy),
		zap.Int64("size", rec.Size),
		zap.Int("delivered", delivered))
	return rec, nil
}

// Remove takes a file down before its deadline. The pending timer is canceled
// and the same cleanup as expiry runs. It reports whether a timer was pending.
// A file that sessionID neither arms nor lists is left untouched and
// ErrFileNotFound is returned.
func (s *Service) Remove(ctx context.Context, sessionID, publicID string) (bool, error) {
	if !ValidSessionID(sessionID) {
		return false, ErrInvalidSession
	}
	if publicID == "" {
		return false, ErrInvalidFile
	}
	canceled := s.scheduler.Cancel(sessionID, publicID)
	if !canceled && !s.holds(ctx, sessionID, publicID) {
		return false, ErrFileNotFound
	}
	s.cleanup(ctx, sessionID, publicID)
	s.metrics.FilesRemoved.Inc()
	return canceled, nil
}

// holds reports whether the room still lists publicID, e.g. a record whose
// timer was lost with a previous process.
func (s *Service) holds(ctx context.Context, sessionID, publicID string) bool {
	for _, rec := range s.store.ListActive(ctx, sessionID) {
		if rec.PublicID == publicID {
			return true
		}
	}
	return false
}

func (s *Service) expire(sessionID, publicID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	s.cleanup(ctx, sessionID, publicID)
	s.metrics.FilesExpired.Inc()
}

// cleanup deletes the blob, removes the record regardless of the outcome and
// tells the whole room. Failures are logged and not retried.
func (s *Service) cleanup(ctx context.Context, sessionID, publicID string) {
	log := s.log.With(zap.String("session_id", sessionID), zap.String("public_id", publicID))

	if err := s.blobs.Delete(ctx, publicID); err != nil {
		s.metrics.BlobDeleteFailures.Inc()
		log.Warn("blob delete failed, removing record anyway", zap.Error(err))
	}
	if err := s.store.Remove(ctx, sessionID, publicID); err != nil {
		s.metrics.RoomStoreWriteErrors.Inc()
		log.Error("remove file record failed", zap.Error(err))
	}
	delivered := s.hub.Publish(sessionID, models.Event{
		Event: models.EventFileExpired,
		Data:  models.FileExpired{PublicID: publicID, Message: models.ExpiredMessage},
	}, "")
	log.Info("file expired", zap.Int("delivered", delivered))
}

// Stats is a point-in-time view for the admin endpoint.
type Stats struct {
	Rooms        int  `json:"rooms"`
	Files        int  `json:"files"`
	ActiveRooms  int  `json:"activeRooms"`
	Peers        int  `json:"peers"`
	ArmedExpiry  int  `json:"armedExpiry"`
	StoreHealthy bool `json:"storeHealthy"`
}

// Stats gathers counts from the store, hub and scheduler.
func (s *Service) Stats(ctx context.Context) Stats {
	st := Stats{StoreHealthy: true, ArmedExpiry: s.scheduler.Pending()}
	st.ActiveRooms, st.Peers = s.hub.Counts()
	ss, err := s.store.Stats(ctx)
	if err != nil {
		s.log.Warn("room store stats failed", zap.Error(err))
		st.StoreHealthy = false
	}
	st.Rooms, st.Files = ss.Rooms, ss.Files
	return st
}

// Shutdown cancels pending timers and disconnects every peer. Blobs whose
// timers are dropped here are left for the provider's own retention.
func (s *Service) Shutdown() {
	s.scheduler.Stop()
	s.hub.CloseAll()
}
