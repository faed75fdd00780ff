package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cppla/sharedrop/models"
)

const defaultRedisPrefix = "share:room:"

// RedisOptions configures a RedisStore. Zero values fall back to the defaults.
type RedisOptions struct {
	Prefix  string
	FileTTL time.Duration
	// RoomTTL is the lifetime of a room key after its most recent append.
	RoomTTL time.Duration
	Timeout time.Duration
	Now     func() time.Time
}

// RedisStore keeps each room in a hash keyed by public ID, so appends from
// different peers never overwrite each other. The hash expires RoomTTL after
// the last append.
type RedisStore struct {
	rdb     *redis.Client
	prefix  string
	fileTTL time.Duration
	roomTTL time.Duration
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// NewRedisStore wraps an existing client. The caller owns the client.
func NewRedisStore(rdb *redis.Client, opts RedisOptions, log *zap.Logger) *RedisStore {
	if opts.Prefix == "" {
		opts.Prefix = defaultRedisPrefix
	}
	if opts.FileTTL <= 0 {
		opts.FileTTL = DefaultFileTTL
	}
	if opts.RoomTTL <= 0 {
		opts.RoomTTL = DefaultRoomTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisStore{
		rdb:     rdb,
		prefix:  opts.Prefix,
		fileTTL: opts.FileTTL,
		roomTTL: opts.RoomTTL,
		timeout: opts.Timeout,
		now:     opts.Now,
		log:     log,
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *RedisStore) ListActive(ctx context.Context, sessionID string) []models.FileRecord {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := s.key(sessionID)
	raw, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		s.log.Warn("room read failed, serving empty list", zap.String("session_id", sessionID), zap.Error(err))
		return []models.FileRecord{}
	}

	now := s.now()
	files := make([]models.FileRecord, 0, len(raw))
	stale := make(map[string]string)
	for field, val := range raw {
		var rec models.FileRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			s.log.Warn("dropping undecodable record", zap.String("session_id", sessionID), zap.String("public_id", field), zap.Error(err))
			stale[field] = val
			continue
		}
		if !rec.ActiveAt(now) {
			stale[field] = val
			continue
		}
		files = append(files, rec)
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].UploadedAt != files[j].UploadedAt {
			return files[i].UploadedAt < files[j].UploadedAt
		}
		return files[i].PublicID < files[j].PublicID
	})

	// best-effort pruning; the filter above already hides these
	if len(stale) > 0 {
		if err := s.prune(ctx, key, stale); err != nil {
			s.log.Debug("prune stale records failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return files
}

// pruneScript deletes a field only while it still holds the value that was
// read, so a record re-announced under the same public ID survives.
var pruneScript = redis.NewScript(`
local n = 0
for i = 1, #ARGV, 2 do
	if redis.call('HGET', KEYS[1], ARGV[i]) == ARGV[i + 1] then
		n = n + redis.call('HDEL', KEYS[1], ARGV[i])
	end
end
return n
`)

func (s *RedisStore) prune(ctx context.Context, key string, stale map[string]string) error {
	args := make([]interface{}, 0, 2*len(stale))
	for field, val := range stale {
		args = append(args, field, val)
	}
	return pruneScript.Run(ctx, s.rdb, []string{key}, args...).Err()
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, rec models.FileRecord) (models.FileRecord, error) {
	if err := validate(sessionID, rec); err != nil {
		return models.FileRecord{}, err
	}
	rec = rec.Stamp(s.now(), s.fileTTL)
	b, err := json.Marshal(rec)
	if err != nil {
		return models.FileRecord{}, fmt.Errorf("encode record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	key := s.key(sessionID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, rec.PublicID, b)
		pipe.Expire(ctx, key, s.roomTTL)
		return nil
	})
	if err != nil {
		return models.FileRecord{}, fmt.Errorf("append to room %s: %w", sessionID, err)
	}
	return rec, nil
}

func (s *RedisStore) Remove(ctx context.Context, sessionID, publicID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.rdb.HDel(ctx, s.key(sessionID), publicID).Err(); err != nil {
		return fmt.Errorf("remove %s from room %s: %w", publicID, sessionID, err)
	}
	return nil
}

// Stats walks the room keys with SCAN; counts include records that expired but
// have not been pruned yet.
func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*s.timeout)
	defer cancel()

	var st Stats
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, s.prefix+"*", 500).Result()
		if err != nil {
			return Stats{}, fmt.Errorf("scan rooms: %w", err)
		}
		if len(keys) > 0 {
			pipe := s.rdb.Pipeline()
			lens := make([]*redis.IntCmd, len(keys))
			for i, k := range keys {
				lens[i] = pipe.HLen(ctx, k)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return Stats{}, fmt.Errorf("count room files: %w", err)
			}
			for _, c := range lens {
				st.Files += int(c.Val())
			}
			st.Rooms += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return st, nil
}

func (s *RedisStore) Close() error {
	return nil
}
